package cms

import (
	"context"
	"encoding/json"
	"fmt"
)

// PlaylistAPI is the slice of the API the reconciler needs.
type PlaylistAPI interface {
	GetPlaylist(ctx context.Context, playlistID int) ([]PlaylistRecord, error)
	DeleteWidget(ctx context.Context, widgetID int) error
	AssignMedia(ctx context.Context, playlistID int, mediaIDs []int) (json.RawMessage, error)
}

// DeletedWidget records one successful widget deletion and the media id that
// led to it.
type DeletedWidget struct {
	MediaID  int
	WidgetID int
}

// Result carries everything Reconcile did or failed to do. Reconcile never
// returns an error: all failure information lands in Notes so the caller can
// log it or act on it.
type Result struct {
	Deleted  []DeletedWidget
	Assigned json.RawMessage
	Notes    []string
}

func (r *Result) note(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// Reconcile makes a playlist contain newMediaIDs, removing widgets that
// reference oldMediaIDs where they can be discovered.
//
// The call is a single linear pipeline: fetch the playlist with widgets
// embedded, build the mediaID -> widgets mapping across both widget
// collection shapes, delete widgets for stale media one by one (a stuck
// widget never blocks the rest), then assign the new media in one call.
// A fetch or shape failure ends the call before anything is touched; an
// assign failure ends it after the deletions, which are kept (they are safe
// to re-run: the next invocation finds no widgets left for those ids).
func Reconcile(ctx context.Context, api PlaylistAPI, playlistID int, newMediaIDs, oldMediaIDs []int) Result {
	res := Result{Deleted: []DeletedWidget{}}

	playlists, err := api.GetPlaylist(ctx, playlistID)
	if err != nil {
		res.note("failed to fetch playlist %d: %v", playlistID, err)
		return res
	}
	if len(playlists) == 0 {
		res.note("playlist %d not found or empty response", playlistID)
		return res
	}

	widgetMap := buildWidgetMap(playlists[0])
	if len(widgetMap) == 0 {
		// Fresh playlist, or an install that does not embed widgets:
		// nothing to delete, assign directly.
		res.note("no widgets discovered for playlist %d; creating widgets by assigning media", playlistID)
		if len(newMediaIDs) == 0 {
			res.note("no new media ids provided; nothing to assign")
			return res
		}
		assigned, err := api.AssignMedia(ctx, playlistID, newMediaIDs)
		if err != nil {
			res.note("failed to assign new media: %v", err)
			return res
		}
		res.Assigned = assigned
		res.note("assigned new media to playlist %d (created widgets)", playlistID)
		return res
	}

	res.note("discovered %d media references for playlist %d", len(widgetMap), playlistID)
	for _, mediaID := range oldMediaIDs {
		if mediaID <= 0 {
			res.note("skipping invalid media id: %d", mediaID)
			continue
		}
		widgetIDs := widgetMap[mediaID]
		if len(widgetIDs) == 0 {
			// Not an error: the media may never have been assigned,
			// or a previous run already removed it.
			res.note("no widget found for media id %d in discovered mapping", mediaID)
			continue
		}
		for _, widgetID := range widgetIDs {
			if err := api.DeleteWidget(ctx, widgetID); err != nil {
				res.note("failed to delete widget %d (media %d): %v", widgetID, mediaID, err)
				continue
			}
			res.Deleted = append(res.Deleted, DeletedWidget{MediaID: mediaID, WidgetID: widgetID})
			res.note("deleted widget %d for media %d", widgetID, mediaID)
		}
	}

	if len(newMediaIDs) == 0 {
		return res
	}
	assigned, err := api.AssignMedia(ctx, playlistID, newMediaIDs)
	if err != nil {
		// Deletions already made are kept; the caller decides what to do
		// with the half-applied state.
		res.note("failed to assign new media: %v", err)
		return res
	}
	res.Assigned = assigned
	res.note("assigned new media to playlist %d", playlistID)
	return res
}
