package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Persisted key layout.
const (
	keyEnabledApp     = "plugins.enabled.app"
	keyEnabledProject = "plugins.enabled.project."
	keySettings       = "plugins.settings."
	keyStartupMarker  = "plugins.startup-marker"
	keyData           = "plugins.data."
)

// StartupMarker records an in-progress startup batch.
type StartupMarker struct {
	Timestamp            time.Time `json:"timestamp"`
	Attempt              int       `json:"attempt"`
	LastEnabledPluginIDs []string  `json:"lastEnabledPluginIds"`
}

// PluginState stores plugin enablement, settings and the startup marker as
// JSON blobs in a KV.
type PluginState struct {
	kv KV
}

// NewPluginState wraps kv.
func NewPluginState(kv KV) *PluginState {
	return &PluginState{kv: kv}
}

// KV returns the underlying store.
func (s *PluginState) KV() KV {
	return s.kv
}

func (s *PluginState) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *PluginState) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(ctx, key, data)
}

// AppEnabled returns the plugin ids enabled at application scope.
func (s *PluginState) AppEnabled(ctx context.Context) ([]string, error) {
	var ids []string
	_, err := s.getJSON(ctx, keyEnabledApp, &ids)
	return ids, err
}

// SaveAppEnabled persists the application-scope enablement list.
func (s *PluginState) SaveAppEnabled(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return s.setJSON(ctx, keyEnabledApp, ids)
}

// ProjectEnabled returns the plugin ids enabled in a project.
func (s *PluginState) ProjectEnabled(ctx context.Context, projectID string) ([]string, error) {
	var ids []string
	_, err := s.getJSON(ctx, keyEnabledProject+projectID, &ids)
	return ids, err
}

// SaveProjectEnabled persists a project's enablement list.
func (s *PluginState) SaveProjectEnabled(ctx context.Context, projectID string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return s.setJSON(ctx, keyEnabledProject+projectID, ids)
}

// Settings returns the persisted settings for a context key, or nil.
func (s *PluginState) Settings(ctx context.Context, contextKey string) (map[string]any, error) {
	var settings map[string]any
	_, err := s.getJSON(ctx, keySettings+contextKey, &settings)
	return settings, err
}

// SaveSettings persists the settings for a context key.
func (s *PluginState) SaveSettings(ctx context.Context, contextKey string, settings map[string]any) error {
	return s.setJSON(ctx, keySettings+contextKey, settings)
}

// StartupMarker returns the marker left by an unfinished startup, or nil.
func (s *PluginState) StartupMarker(ctx context.Context) (*StartupMarker, error) {
	var m StartupMarker
	ok, err := s.getJSON(ctx, keyStartupMarker, &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

// WriteStartupMarker records the start of a batch activation.
func (s *PluginState) WriteStartupMarker(ctx context.Context, m StartupMarker) error {
	return s.setJSON(ctx, keyStartupMarker, m)
}

// ClearStartupMarker removes the marker.
func (s *PluginState) ClearStartupMarker(ctx context.Context) error {
	return s.kv.Delete(ctx, keyStartupMarker)
}

// DataKey returns the KV key of a plugin-owned storage entry.
func DataKey(pluginID, key string) string {
	return keyData + pluginID + "." + key
}

// DataPrefix returns the KV prefix of a plugin's storage entries.
func DataPrefix(pluginID string) string {
	return keyData + pluginID + "."
}
