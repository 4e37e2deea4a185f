// Package config loads and validates the signsync configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Config mirrors config.json. Field names follow the file the previous
// generation of this tool used, so existing deployments keep working.
type Config struct {
	URL            string `json:"url"`
	ClientID       string `json:"id"`
	ClientSecret   string `json:"secret"`
	TargetPath     string `json:"target_path"`
	PlaylistName   string `json:"playlist_name,omitempty"`
	PlaylistID     int    `json:"playlist_id,omitempty"`
	ManifestDSN    string `json:"manifest,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

const DefaultTimeoutSeconds = 10

// schemaText is validated against the raw document before decoding, so a
// typo like a string playlist_id is reported by field instead of silently
// zeroed by the JSON decoder.
const schemaText = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["url", "target_path"],
	"properties": {
		"url": {"type": "string", "minLength": 1},
		"id": {"type": "string"},
		"secret": {"type": "string"},
		"target_path": {"type": "string", "minLength": 1},
		"playlist_name": {"type": "string"},
		"playlist_id": {"type": "integer", "minimum": 1},
		"manifest": {"type": "string"},
		"timeout_seconds": {"type": "integer", "minimum": 1}
	},
	"additionalProperties": true
}`

// Load reads, validates and decodes a config file, then applies SIGNSYNC_*
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates raw config bytes against the schema and decodes them.
func Parse(data []byte) (*Config, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnvOverrides(&cfg)
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
	return &cfg, nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaText))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("config.schema.json")
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SIGNSYNC_URL")); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGNSYNC_CLIENT_ID")); v != "" {
		cfg.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGNSYNC_CLIENT_SECRET")); v != "" {
		cfg.ClientSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGNSYNC_TARGET_PATH")); v != "" {
		cfg.TargetPath = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGNSYNC_PLAYLIST_NAME")); v != "" {
		cfg.PlaylistName = v
	}
	if v := strings.TrimSpace(os.Getenv("SIGNSYNC_PLAYLIST_ID")); v != "" {
		if id, err := strconv.Atoi(v); err == nil && id > 0 {
			cfg.PlaylistID = id
		}
	}
	if v := strings.TrimSpace(os.Getenv("SIGNSYNC_MANIFEST_DSN")); v != "" {
		cfg.ManifestDSN = v
	}
}
