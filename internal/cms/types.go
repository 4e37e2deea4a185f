package cms

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// PlaylistSummary is one element of the GET /playlist listing.
type PlaylistSummary struct {
	PlaylistID any    `json:"playlistId"`
	Name       string `json:"name"`
}

// ID returns the playlist identifier coerced to an integer.
func (p PlaylistSummary) ID() (int, bool) {
	return coerceID(p.PlaylistID)
}

// PlaylistRecord is one element of the embedded playlist fetch. Depending on
// the CMS version the widget collection is exposed under "widgets" or
// "newWidgets"; both are decoded and merged downstream.
type PlaylistRecord struct {
	PlaylistID any            `json:"playlistId"`
	Name       string         `json:"name"`
	Widgets    []WidgetRecord `json:"widgets"`
	NewWidgets []WidgetRecord `json:"newWidgets"`
}

// WidgetRecord is the raw wire shape of a playlist widget. The widget id
// arrives as "widgetId" or "id", and the media reference as a plural
// "mediaIds" list or a scalar "mediaId", depending on the CMS version.
type WidgetRecord struct {
	WidgetID any   `json:"widgetId"`
	ID       any   `json:"id"`
	MediaIDs []any `json:"mediaIds"`
	MediaID  any   `json:"mediaId"`
}

// widgetMediaRefs is the normalized intermediate form of a widget: one widget
// id plus the media ids it references. All historical wire shapes funnel
// through normalizeWidget into this form before any mapping is built, so a
// future shape only touches that one conversion.
type widgetMediaRefs struct {
	widgetID int
	mediaIDs []int
}

// normalizeWidget converts a raw widget record into widgetMediaRefs. Widgets
// without a coercible widget id are dropped; media entries that fail coercion
// are skipped individually.
func normalizeWidget(w WidgetRecord) (widgetMediaRefs, bool) {
	wid, ok := coerceID(w.WidgetID)
	if !ok {
		wid, ok = coerceID(w.ID)
	}
	if !ok {
		return widgetMediaRefs{}, false
	}
	refs := widgetMediaRefs{widgetID: wid}
	if len(w.MediaIDs) > 0 {
		for _, raw := range w.MediaIDs {
			if mid, ok := coerceID(raw); ok {
				refs.mediaIDs = append(refs.mediaIDs, mid)
			}
		}
	} else if mid, ok := coerceID(w.MediaID); ok {
		refs.mediaIDs = append(refs.mediaIDs, mid)
	}
	return refs, true
}

// buildWidgetMap scans every widget of a playlist record and returns the
// merged mediaID -> widget IDs mapping. A media id may appear in any number
// of widgets and a widget may reference any number of media ids.
func buildWidgetMap(p PlaylistRecord) map[int][]int {
	widgetMap := map[int][]int{}
	widgets := make([]WidgetRecord, 0, len(p.Widgets)+len(p.NewWidgets))
	widgets = append(widgets, p.Widgets...)
	widgets = append(widgets, p.NewWidgets...)
	for _, w := range widgets {
		refs, ok := normalizeWidget(w)
		if !ok {
			continue
		}
		for _, mid := range refs.mediaIDs {
			widgetMap[mid] = append(widgetMap[mid], refs.widgetID)
		}
	}
	return widgetMap
}

// LibraryItem is one element of a GET /library search. The media identifier
// field has drifted across CMS versions.
type LibraryItem struct {
	MediaID    any    `json:"mediaId"`
	MediaIDAlt any    `json:"media_id"`
	RawID      any    `json:"id"`
	FileName   string `json:"fileName"`
	Name       string `json:"name"`
}

// ID returns the media identifier, trying mediaId, media_id and id in order.
func (it LibraryItem) ID() (int, bool) {
	for _, raw := range []any{it.MediaID, it.MediaIDAlt, it.RawID} {
		if id, ok := coerceID(raw); ok {
			return id, ok
		}
	}
	return 0, false
}

// coerceID converts a decoded JSON value into a positive integer identifier.
// Accepts integral floats (the default decoding of JSON numbers), json.Number
// and numeric strings. Zero, negatives and everything else fail coercion.
func coerceID(raw any) (int, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case int:
		if v > 0 {
			return v, true
		}
	case int64:
		if v > 0 {
			return int(v), true
		}
	case float64:
		if v > 0 && v == math.Trunc(v) {
			return int(v), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
