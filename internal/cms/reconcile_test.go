package cms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

type fakePlaylistAPI struct {
	playlists    []PlaylistRecord
	fetchErr     error
	deleteErr    map[int]error
	assignErr    error
	assignResult json.RawMessage

	deleteCalls []int
	assignCalls [][]int
}

func (f *fakePlaylistAPI) GetPlaylist(ctx context.Context, playlistID int) ([]PlaylistRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.playlists, nil
}

func (f *fakePlaylistAPI) DeleteWidget(ctx context.Context, widgetID int) error {
	f.deleteCalls = append(f.deleteCalls, widgetID)
	if err, ok := f.deleteErr[widgetID]; ok {
		return err
	}
	return nil
}

func (f *fakePlaylistAPI) AssignMedia(ctx context.Context, playlistID int, mediaIDs []int) (json.RawMessage, error) {
	f.assignCalls = append(f.assignCalls, append([]int(nil), mediaIDs...))
	if f.assignErr != nil {
		return nil, f.assignErr
	}
	if f.assignResult != nil {
		return f.assignResult, nil
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func playlistWithWidgets(widgets ...WidgetRecord) []PlaylistRecord {
	return []PlaylistRecord{{PlaylistID: float64(7), Name: "dashboard", Widgets: widgets}}
}

func TestReconcileTerminalFetchFailure(t *testing.T) {
	api := &fakePlaylistAPI{fetchErr: &HTTPError{StatusCode: 500, Message: "boom"}}
	res := Reconcile(context.Background(), api, 7, []int{5}, []int{3})

	if len(res.Deleted) != 0 {
		t.Fatalf("expected no deletions after fetch failure, got %v", res.Deleted)
	}
	if res.Assigned != nil {
		t.Fatalf("expected nil assign result, got %s", res.Assigned)
	}
	if len(res.Notes) != 1 || !strings.Contains(res.Notes[0], "failed to fetch playlist") {
		t.Fatalf("expected exactly one fetch-failure note, got %v", res.Notes)
	}
	if len(api.deleteCalls) != 0 || len(api.assignCalls) != 0 {
		t.Fatalf("expected no delete or assign attempts, got %v / %v", api.deleteCalls, api.assignCalls)
	}
}

func TestReconcileEmptyResponseIsNotFound(t *testing.T) {
	api := &fakePlaylistAPI{playlists: []PlaylistRecord{}}
	res := Reconcile(context.Background(), api, 42, []int{5}, nil)

	if len(res.Notes) != 1 || !strings.Contains(res.Notes[0], "not found") {
		t.Fatalf("expected single not-found note, got %v", res.Notes)
	}
	if len(api.assignCalls) != 0 {
		t.Fatalf("expected no assign call on not-found playlist, got %v", api.assignCalls)
	}
}

func TestReconcileMergesAllWidgetShapes(t *testing.T) {
	// Media references split across the plural field, the scalar field and
	// both widget collection names must land in one mapping.
	api := &fakePlaylistAPI{
		playlists: []PlaylistRecord{{
			PlaylistID: float64(7),
			Widgets: []WidgetRecord{
				{WidgetID: float64(100), MediaIDs: []any{float64(1), float64(2)}},
				{ID: float64(101), MediaID: float64(2)},
			},
			NewWidgets: []WidgetRecord{
				{WidgetID: float64(102), MediaID: "3"},
				{MediaID: float64(4)}, // no widget id: dropped
			},
		}},
	}
	res := Reconcile(context.Background(), api, 7, nil, []int{1, 2, 3, 4})

	want := map[int][]int{1: {100}, 2: {100, 101}, 3: {102}}
	got := map[int][]int{}
	for _, d := range res.Deleted {
		got[d.MediaID] = append(got[d.MediaID], d.WidgetID)
	}
	for mediaID, widgets := range want {
		if fmt.Sprint(got[mediaID]) != fmt.Sprint(widgets) {
			t.Fatalf("media %d: expected widgets %v deleted, got %v (all: %v)", mediaID, widgets, got[mediaID], got)
		}
	}
	foundSkipNote := false
	for _, note := range res.Notes {
		if strings.Contains(note, "no widget found for media id 4") {
			foundSkipNote = true
		}
	}
	if !foundSkipNote {
		t.Fatalf("expected note for media 4 whose widget had no id, got %v", res.Notes)
	}
}

func TestReconcilePartialDeleteFailureIsIsolated(t *testing.T) {
	api := &fakePlaylistAPI{
		playlists: playlistWithWidgets(
			WidgetRecord{WidgetID: float64(10), MediaID: float64(1)},
			WidgetRecord{WidgetID: float64(11), MediaID: float64(2)},
		),
		deleteErr: map[int]error{10: &HTTPError{StatusCode: 500, Message: "stuck"}},
	}
	res := Reconcile(context.Background(), api, 7, []int{9}, []int{1, 2})

	if len(res.Deleted) != 1 || res.Deleted[0] != (DeletedWidget{MediaID: 2, WidgetID: 11}) {
		t.Fatalf("expected only widget 11 recorded as deleted, got %v", res.Deleted)
	}
	failureNoted := false
	for _, note := range res.Notes {
		if strings.Contains(note, "failed to delete widget 10") {
			failureNoted = true
		}
	}
	if !failureNoted {
		t.Fatalf("expected failure note for widget 10, got %v", res.Notes)
	}
	// The stuck widget must not block the assign step either.
	if len(api.assignCalls) != 1 {
		t.Fatalf("expected one assign call, got %d", len(api.assignCalls))
	}
	if res.Assigned == nil {
		t.Fatalf("expected assign result to be carried through")
	}
}

func TestReconcileSecondRunFindsNothingToDelete(t *testing.T) {
	// After a successful run the widgets are gone; reconciling the same old
	// ids again must observe empty widget lists, not re-delete.
	api := &fakePlaylistAPI{
		playlists: playlistWithWidgets(WidgetRecord{WidgetID: float64(10), MediaID: float64(1)}),
	}
	first := Reconcile(context.Background(), api, 7, nil, []int{1})
	if len(first.Deleted) != 1 {
		t.Fatalf("expected first run to delete one widget, got %v", first.Deleted)
	}

	// Same playlist, widget now gone but another widget keeps the map
	// non-empty.
	api.playlists = playlistWithWidgets(WidgetRecord{WidgetID: float64(20), MediaID: float64(5)})
	api.deleteCalls = nil
	second := Reconcile(context.Background(), api, 7, nil, []int{1})
	if len(second.Deleted) != 0 {
		t.Fatalf("expected second run to delete nothing, got %v", second.Deleted)
	}
	if len(api.deleteCalls) != 0 {
		t.Fatalf("expected no delete attempts on second run, got %v", api.deleteCalls)
	}
	noted := false
	for _, note := range second.Notes {
		if strings.Contains(note, "no widget found for media id 1") {
			noted = true
		}
	}
	if !noted {
		t.Fatalf("expected already-removed note, got %v", second.Notes)
	}
}

func TestReconcileEmptyWidgetMapAssignsDirectly(t *testing.T) {
	api := &fakePlaylistAPI{playlists: []PlaylistRecord{{PlaylistID: float64(7)}}}
	res := Reconcile(context.Background(), api, 7, []int{5, 6}, []int{1, 2, 3})

	if len(api.deleteCalls) != 0 {
		t.Fatalf("expected zero deletion attempts, got %v", api.deleteCalls)
	}
	if len(api.assignCalls) != 1 || fmt.Sprint(api.assignCalls[0]) != fmt.Sprint([]int{5, 6}) {
		t.Fatalf("expected exactly one assign call with [5 6], got %v", api.assignCalls)
	}
	if res.Assigned == nil {
		t.Fatalf("expected assign result, got nil")
	}
}

func TestReconcileEmptyWidgetMapNothingToAssign(t *testing.T) {
	api := &fakePlaylistAPI{playlists: []PlaylistRecord{{PlaylistID: float64(7)}}}
	res := Reconcile(context.Background(), api, 7, nil, []int{1})

	if len(api.assignCalls) != 0 {
		t.Fatalf("expected no assign call, got %v", api.assignCalls)
	}
	noted := false
	for _, note := range res.Notes {
		if strings.Contains(note, "nothing to assign") {
			noted = true
		}
	}
	if !noted {
		t.Fatalf("expected nothing-to-assign note, got %v", res.Notes)
	}
}

func TestReconcileAssignFailureKeepsDeletions(t *testing.T) {
	api := &fakePlaylistAPI{
		playlists: playlistWithWidgets(WidgetRecord{WidgetID: float64(10), MediaID: float64(1)}),
		assignErr: &HTTPError{StatusCode: 422, Message: "bad media"},
	}
	res := Reconcile(context.Background(), api, 7, []int{5}, []int{1})

	if len(res.Deleted) != 1 {
		t.Fatalf("expected the completed deletion to be kept, got %v", res.Deleted)
	}
	if res.Assigned != nil {
		t.Fatalf("expected nil assign result after failure, got %s", res.Assigned)
	}
	noted := false
	for _, note := range res.Notes {
		if strings.Contains(note, "failed to assign new media") {
			noted = true
		}
	}
	if !noted {
		t.Fatalf("expected assign-failure note, got %v", res.Notes)
	}
}

func TestReconcileSkipsInvalidOldMediaIDs(t *testing.T) {
	api := &fakePlaylistAPI{
		playlists: playlistWithWidgets(WidgetRecord{WidgetID: float64(10), MediaID: float64(1)}),
	}
	res := Reconcile(context.Background(), api, 7, nil, []int{-3, 0, 1})

	if len(res.Deleted) != 1 || res.Deleted[0].MediaID != 1 {
		t.Fatalf("expected only media 1 processed, got %v", res.Deleted)
	}
	skips := 0
	for _, note := range res.Notes {
		if strings.Contains(note, "skipping invalid media id") {
			skips++
		}
	}
	if skips != 2 {
		t.Fatalf("expected 2 invalid-id notes, got %d (%v)", skips, res.Notes)
	}
}

func TestReconcileDuplicateOldIDsProcessedIndependently(t *testing.T) {
	api := &fakePlaylistAPI{
		playlists: playlistWithWidgets(WidgetRecord{WidgetID: float64(10), MediaID: float64(1)}),
	}
	res := Reconcile(context.Background(), api, 7, nil, []int{1, 1})

	// Each duplicate looks the widget up again; the CMS sees two deletes.
	if len(api.deleteCalls) != 2 {
		t.Fatalf("expected two delete attempts for duplicated id, got %v", api.deleteCalls)
	}
	if len(res.Deleted) != 2 {
		t.Fatalf("expected both deletions recorded, got %v", res.Deleted)
	}
}
