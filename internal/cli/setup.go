// Package cli implements the signsync commands.
package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/openkiosk/signsync/internal/cms"
	"github.com/openkiosk/signsync/internal/config"
	"github.com/openkiosk/signsync/internal/manifest"
	"github.com/openkiosk/signsync/internal/syncer"
)

// commonFlags are the flags shared by the commands that talk to the CMS.
type commonFlags struct {
	configPath  string
	token       string
	manifestDSN string
	playlistID  int
	targetDir   string
}

type runtime struct {
	cfg      *config.Config
	client   *cms.Client
	backend  manifest.Backend
	syncer   *syncer.Syncer
	shutdown func()
}

// buildRuntime loads the config, obtains a token (unless one was passed),
// and wires client, manifest backend and syncer together.
func buildRuntime(ctx context.Context, flags commonFlags) (*runtime, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.targetDir != "" {
		cfg.TargetPath = flags.targetDir
	}
	if flags.playlistID > 0 {
		cfg.PlaylistID = flags.playlistID
	}
	if flags.manifestDSN != "" {
		cfg.ManifestDSN = flags.manifestDSN
	}
	if strings.TrimSpace(cfg.ManifestDSN) == "" {
		cfg.ManifestDSN = "known_files.json"
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	token := strings.TrimSpace(flags.token)
	if token == "" {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("config is missing id/secret and no --token was given")
		}
		token, err = cms.Authenticate(ctx, cfg.URL, cfg.ClientID, cfg.ClientSecret, httpClient)
		if err != nil {
			return nil, fmt.Errorf("obtain token: %w", err)
		}
	}
	client := cms.NewClient(cfg.URL, token, httpClient)

	backend, err := manifest.BuildBackendFromDSN(cfg.ManifestDSN)
	if err != nil {
		return nil, fmt.Errorf("manifest backend: %w", err)
	}

	s, err := syncer.NewSyncer(client, syncer.Options{
		TargetDir:    cfg.TargetPath,
		PlaylistID:   cfg.PlaylistID,
		PlaylistName: cfg.PlaylistName,
		Manifest:     backend,
		Logger:       log.Default(),
	})
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:     cfg,
		client:  client,
		backend: backend,
		syncer:  s,
		shutdown: func() {
			if err := manifest.CloseBackend(backend); err != nil {
				log.Printf("close manifest backend: %v", err)
			}
		},
	}, nil
}

func registerCommonFlags(set flagSetter, flags *commonFlags) {
	set.StringVar(&flags.configPath, "config", "config.json", "path to config.json")
	set.StringVar(&flags.token, "token", "", "bearer token (skips the OAuth token exchange)")
	set.StringVar(&flags.manifestDSN, "manifest", "", "manifest DSN (file path, memory://, postgres://, sqlite://)")
	set.IntVar(&flags.playlistID, "playlist-id", 0, "target playlist id (overrides config)")
	set.StringVar(&flags.targetDir, "target-dir", "", "local media directory (overrides config)")
}

// flagSetter is the slice of pflag.FlagSet the commands use.
type flagSetter interface {
	StringVar(p *string, name string, value string, usage string)
	IntVar(p *int, name string, value int, usage string)
}
