// Package syncer drives one-way synchronization of a local media directory
// into a CMS playlist: diff against the manifest, upload, reconcile, rewrite
// the manifest.
package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/openkiosk/signsync/internal/cms"
	"github.com/openkiosk/signsync/internal/manifest"
)

type Logger interface {
	Printf(format string, args ...any)
}

type Options struct {
	TargetDir    string
	PlaylistID   int
	PlaylistName string
	Manifest     manifest.Backend
	Logger       Logger
}

type Syncer struct {
	client       cms.API
	manifest     manifest.Backend
	targetDir    string
	playlistID   int
	playlistName string
	logger       Logger
	now          func() time.Time
}

func NewSyncer(client cms.API, opts Options) (*Syncer, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	targetDirRaw := strings.TrimSpace(opts.TargetDir)
	if targetDirRaw == "" {
		return nil, fmt.Errorf("target directory is required")
	}
	targetDir := filepath.Clean(targetDirRaw)
	if opts.Manifest == nil {
		return nil, fmt.Errorf("manifest backend is required")
	}
	if opts.PlaylistID <= 0 && strings.TrimSpace(opts.PlaylistName) == "" {
		return nil, fmt.Errorf("playlist id or playlist name is required")
	}
	return &Syncer{
		client:       client,
		manifest:     opts.Manifest,
		targetDir:    targetDir,
		playlistID:   opts.PlaylistID,
		playlistName: strings.TrimSpace(opts.PlaylistName),
		logger:       opts.Logger,
		now:          time.Now,
	}, nil
}

// Plan is the diff between the target directory and the manifest.
type Plan struct {
	Add       []string             // local files never uploaded
	Replace   []manifest.KnownFile // local files whose mtime changed
	Remove    []manifest.KnownFile // manifest entries with no local file left
	Unchanged []manifest.KnownFile
}

func (p Plan) Empty() bool {
	return len(p.Add) == 0 && len(p.Replace) == 0 && len(p.Remove) == 0
}

// uploads lists every local file name that needs an upload this run.
func (p Plan) uploads() []string {
	names := append([]string{}, p.Add...)
	for _, known := range p.Replace {
		names = append(names, known.Name)
	}
	sort.Strings(names)
	return names
}

// staleNames lists the CMS display names that should no longer be referenced.
func (p Plan) staleNames() []string {
	names := make([]string, 0, len(p.Replace)+len(p.Remove))
	for _, known := range p.Replace {
		names = append(names, known.FormatName)
	}
	for _, known := range p.Remove {
		names = append(names, known.FormatName)
	}
	return names
}

// Report is the outcome of one sync cycle.
type Report struct {
	Plan            Plan
	Uploaded        map[string]int // local name -> media id
	NewMediaIDs     []int
	OldMediaIDs     []int
	Reconcile       cms.Result
	ManifestWritten bool
}

// BuildPlan loads the manifest and diffs it against the target directory.
// An unreadable manifest is downgraded to a warning and treated as empty,
// so a corrupted state file costs one full re-upload instead of a dead tool.
func (s *Syncer) BuildPlan(ctx context.Context) (Plan, error) {
	known, err := s.manifest.Load()
	if err != nil {
		s.logf("warning: manifest could not be read (%v); no files will be ignored", err)
		known = nil
	}
	local, err := s.scanTargetDir()
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{}
	seen := map[string]bool{}
	for _, item := range known {
		seen[item.Name] = true
		mtime, exists := local[item.Name]
		switch {
		case !exists:
			plan.Remove = append(plan.Remove, item)
		case mtime != item.Timestamp:
			plan.Replace = append(plan.Replace, item)
		default:
			plan.Unchanged = append(plan.Unchanged, item)
		}
	}
	for name := range local {
		if !seen[name] {
			plan.Add = append(plan.Add, name)
		}
	}
	sort.Strings(plan.Add)
	sort.Slice(plan.Replace, func(i, j int) bool { return plan.Replace[i].Name < plan.Replace[j].Name })
	sort.Slice(plan.Remove, func(i, j int) bool { return plan.Remove[i].Name < plan.Remove[j].Name })
	return plan, nil
}

// ResolvePlaylistID returns the configured playlist id, looking the playlist
// name up in the CMS when only a name was given.
func (s *Syncer) ResolvePlaylistID(ctx context.Context) (int, error) {
	if s.playlistID > 0 {
		return s.playlistID, nil
	}
	playlists, err := s.client.GetPlaylists(ctx)
	if err != nil {
		return 0, fmt.Errorf("list playlists: %w", err)
	}
	for _, p := range playlists {
		if p.Name != s.playlistName {
			continue
		}
		id, ok := p.ID()
		if !ok {
			continue
		}
		s.playlistID = id
		return id, nil
	}
	return 0, fmt.Errorf("playlist %q not found in CMS", s.playlistName)
}

// SyncOnce runs one full cycle: plan, upload, locate stale media, reconcile,
// rewrite the manifest. An upload failure aborts before anything is deleted;
// an assignment failure leaves the manifest untouched so the next run
// retries the same plan.
func (s *Syncer) SyncOnce(ctx context.Context) (*Report, error) {
	plan, err := s.BuildPlan(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Plan: plan, Uploaded: map[string]int{}}
	if plan.Empty() {
		s.logf("no changes found")
		return report, nil
	}
	s.logf("changes: %d to add, %d to replace, %d to remove",
		len(plan.Add), len(plan.Replace), len(plan.Remove))

	playlistID, err := s.ResolvePlaylistID(ctx)
	if err != nil {
		return nil, err
	}

	newDisplayNames := map[string]string{}
	for _, name := range plan.uploads() {
		displayName := displayNameFor(name, s.now())
		mediaID, err := s.client.UploadMedia(ctx, filepath.Join(s.targetDir, name), displayName, moduleTypeFor(name))
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", name, err)
		}
		s.logf("uploaded %s as %s (media %d)", name, displayName, mediaID)
		newDisplayNames[name] = displayName
		report.Uploaded[name] = mediaID
		report.NewMediaIDs = append(report.NewMediaIDs, mediaID)
	}

	stale := plan.staleNames()
	if len(stale) > 0 {
		located := cms.FindMediaIDs(ctx, s.client, stale)
		for _, name := range stale {
			report.OldMediaIDs = append(report.OldMediaIDs, located[name]...)
		}
	}

	report.Reconcile = cms.Reconcile(ctx, s.client, playlistID, report.NewMediaIDs, report.OldMediaIDs)
	for _, note := range report.Reconcile.Notes {
		s.logf("reconcile: %s", note)
	}

	if len(report.NewMediaIDs) > 0 && report.Reconcile.Assigned == nil {
		// Known consistency gap: deletions that already happened are kept,
		// but the manifest is not advanced, so the next run re-resolves and
		// re-assigns the same files.
		return report, fmt.Errorf("assigning media to playlist %d failed; manifest left unchanged", playlistID)
	}

	if err := s.rewriteManifest(plan, newDisplayNames); err != nil {
		return report, fmt.Errorf("write manifest: %w", err)
	}
	report.ManifestWritten = true
	return report, nil
}

// rewriteManifest records every file currently in the target directory:
// fresh uploads under their new display name, unchanged files under the one
// they already had.
func (s *Syncer) rewriteManifest(plan Plan, newDisplayNames map[string]string) error {
	local, err := s.scanTargetDir()
	if err != nil {
		return err
	}
	keep := map[string]string{}
	for _, known := range plan.Unchanged {
		keep[known.Name] = known.FormatName
	}

	names := make([]string, 0, len(local))
	for name := range local {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]manifest.KnownFile, 0, len(names))
	for _, name := range names {
		displayName, ok := newDisplayNames[name]
		if !ok {
			displayName = keep[name]
		}
		if displayName == "" {
			// File appeared after planning; it will be picked up next run.
			continue
		}
		out = append(out, manifest.KnownFile{
			Name:       name,
			Timestamp:  local[name],
			FormatName: displayName,
		})
	}
	if err := s.manifest.Save(out); err != nil {
		return err
	}
	s.logf("wrote %d files to manifest", len(out))
	return nil
}

// scanTargetDir lists regular files directly in the target directory, keyed
// by name with their mtime. Subdirectories and dotfiles are ignored.
func (s *Syncer) scanTargetDir() (map[string]int64, error) {
	entries, err := os.ReadDir(s.targetDir)
	if err != nil {
		return nil, err
	}
	files := map[string]int64{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files[entry.Name()] = info.ModTime().UnixNano()
	}
	return files, nil
}

func (s *Syncer) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// moduleTypeFor maps a file to the CMS library module type used on upload.
func moduleTypeFor(name string) string {
	if imageExtensions[strings.ToLower(filepath.Ext(name))] {
		return "image"
	}
	return "video"
}

// displayNameFor builds the library display name for an upload: a cleaned
// prefix of the base name plus an upload timestamp, so repeated uploads of
// the same file stay distinguishable in the CMS library.
func displayNameFor(name string, now time.Time) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ReplaceAll(base, " ", "")
	if len(base) > 10 {
		base = base[:10]
	}
	return "_api_" + base + "_" + now.Format("20060102150405")
}
