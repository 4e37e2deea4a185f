package cms

import (
	"context"
	"strings"
)

// LibrarySearcher is the slice of the API the locator needs.
type LibrarySearcher interface {
	SearchLibrary(ctx context.Context, param, value string) ([]LibraryItem, error)
}

// searchParams are the library query parameters tried per name, in priority
// order. Which one an install honors varies by CMS version, so each is
// attempted until one yields a match.
var searchParams = []string{"fileName", "name", "search"}

// FindMediaIDs resolves display names to CMS media ids. For every name the
// search strategies are tried in order and the first one returning at least
// one matching record wins. A failed request or undecodable response counts
// as no match for that strategy and never aborts the lookup of other names.
// Names that resolve to nothing map to an empty slice, not an error.
func FindMediaIDs(ctx context.Context, api LibrarySearcher, names []string) map[string][]int {
	result := make(map[string][]int, len(names))
	for _, name := range names {
		result[name] = []int{}
		for _, param := range searchParams {
			items, err := api.SearchLibrary(ctx, param, name)
			if err != nil {
				continue
			}
			for _, item := range items {
				id, ok := item.ID()
				if !ok {
					continue
				}
				if matchesName(item, name) {
					result[name] = append(result[name], id)
				}
			}
			if len(result[name]) > 0 {
				break
			}
		}
	}
	return result
}

// matchesName reports whether a library record corresponds to the queried
// name: exact file name, exact display name, or the name appearing inside
// the stored file name.
func matchesName(item LibraryItem, name string) bool {
	if item.FileName == name || item.Name == name {
		return true
	}
	return item.FileName != "" && strings.Contains(item.FileName, name)
}
