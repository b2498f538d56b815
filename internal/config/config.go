// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package config implements the layered configuration store. Values are
// keyed by dotted paths ("section.subsection.key") and resolved with strict
// precedence, low to high: compiled defaults, system file, user file,
// project file, environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/rapidaai/streamhub/pkg/commons"
)

// Layer identifies one configuration source. Higher layers override lower.
type Layer int

const (
	LayerDefaults Layer = iota
	LayerSystem
	LayerUser
	LayerProject
	LayerEnv
)

func (l Layer) String() string {
	switch l {
	case LayerDefaults:
		return "defaults"
	case LayerSystem:
		return "system"
	case LayerUser:
		return "user"
	case LayerProject:
		return "project"
	case LayerEnv:
		return "env"
	default:
		return "unknown"
	}
}

// Default file locations for the file-backed layers.
const (
	SystemConfigFile  = "/etc/streamhub/streamhub.yaml"
	UserConfigFile    = ".config/streamhub/streamhub.yaml" // under $HOME
	ProjectConfigFile = "streamhub.yaml"                   // under the working directory
)

// defaults are the compiled-in values for every known key.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"system.storage_path": "storage",
		"system.log_level":    "INFO",
		"system.log_path":     "",

		"local_devices.enable_video":  true,
		"local_devices.enable_audio":  true,
		"local_devices.scan_interval": 60,
		"local_devices.auto_start":    false,

		"network_devices.scan_interval":     60,
		"network_devices.discovery_enabled": true,
		"network_devices.discovery_methods": []string{"onvif", "upnp", "mdns"},

		"streaming.transcoder_bin":        "ffmpeg",
		"streaming.startup_grace_seconds": 2,
		"streaming.stop_timeout_seconds":  5,
		"streaming.rtsp.port_start":       8554,
		"streaming.rtmp.port_start":       1935,
		"streaming.rtmp.server_bin":       "mediamtx",
		"streaming.webrtc.port_start":     8080,
		"streaming.webrtc.server_bin":     "streamhub-httpd",
		"streaming.webrtc.stun_server":    "",
	}
}

// envTable maps environment variable names to the dotted paths they
// override. The table is fixed; unknown environment variables are ignored.
var envTable = map[string]string{
	"STORAGE_PATH":          "system.storage_path",
	"LOG_LEVEL":             "system.log_level",
	"LOG_PATH":              "system.log_path",
	"STUN_SERVER":           "streaming.webrtc.stun_server",
	"TRANSCODER_BIN":        "streaming.transcoder_bin",
	"LOCAL_SCAN_INTERVAL":   "local_devices.scan_interval",
	"NETWORK_SCAN_INTERVAL": "network_devices.scan_interval",
}

// Store resolves dotted-path lookups against the merged layer stack. Reads
// are lock-free after Load except for the RWMutex guarding re-merges; writes
// serialize a single layer back to its own file and never touch lower
// layers.
type Store struct {
	mu     sync.RWMutex
	logger commons.Logger

	layers map[Layer]*viper.Viper
	files  map[Layer]string
	merged *viper.Viper
}

// StoreOption configures NewStore.
type StoreOption func(*Store)

// WithSystemFile overrides the system-layer file path.
func WithSystemFile(path string) StoreOption {
	return func(s *Store) { s.files[LayerSystem] = path }
}

// WithUserFile overrides the user-layer file path.
func WithUserFile(path string) StoreOption {
	return func(s *Store) { s.files[LayerUser] = path }
}

// WithProjectFile overrides the project-layer file path.
func WithProjectFile(path string) StoreOption {
	return func(s *Store) { s.files[LayerProject] = path }
}

// NewStore builds a store with compiled defaults already applied. Call Load
// to pull in the file layers and environment overrides.
func NewStore(logger commons.Logger, opts ...StoreOption) *Store {
	home, _ := os.UserHomeDir()
	s := &Store{
		logger: logger,
		layers: make(map[Layer]*viper.Viper),
		files: map[Layer]string{
			LayerSystem:  SystemConfigFile,
			LayerUser:    filepath.Join(home, UserConfigFile),
			LayerProject: ProjectConfigFile,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	defaultLayer := viper.New()
	for key, value := range defaults() {
		defaultLayer.Set(key, value)
	}
	s.layers[LayerDefaults] = defaultLayer
	s.layers[LayerEnv] = viper.New()
	s.remerge()
	return s
}

// Load reads each file layer and the environment table, then rebuilds the
// merged view. A missing layer file is not an error; a malformed one aborts
// that layer only.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, layer := range []Layer{LayerSystem, LayerUser, LayerProject} {
		s.layers[layer] = s.readFileLayer(layer)
	}

	env := viper.New()
	for name, path := range envTable {
		if raw, ok := os.LookupEnv(name); ok {
			env.Set(path, coerce(raw))
		}
	}
	s.layers[LayerEnv] = env

	s.remerge()
}

func (s *Store) readFileLayer(layer Layer) *viper.Viper {
	v := viper.New()
	path := s.files[layer]
	if path == "" {
		return v
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
				s.logger.Errorw("could not parse config layer, skipping it",
					"layer", layer.String(),
					"file", path,
					"error", err.Error(),
				)
			}
		}
		return viper.New()
	}
	s.logger.Debugw("loaded config layer", "layer", layer.String(), "file", path)
	return v
}

// remerge rebuilds the merged view from the layers in precedence order.
// Callers must hold mu.
func (s *Store) remerge() {
	merged := viper.New()
	for _, layer := range []Layer{LayerDefaults, LayerSystem, LayerUser, LayerProject, LayerEnv} {
		v, ok := s.layers[layer]
		if !ok {
			continue
		}
		if err := merged.MergeConfigMap(v.AllSettings()); err != nil {
			s.logger.Errorw("could not merge config layer",
				"layer", layer.String(), "error", err.Error())
		}
	}
	s.merged = merged
}

// coerce converts an environment string into a typed scalar: "true"/"false"
// become booleans, digit-only strings integers, single-dot digit strings
// floats, anything else stays a string.
func coerce(raw string) interface{} {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if strings.Count(raw, ".") == 1 {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

// Set assigns a value into one layer and rebuilds the merged view. It does
// not persist; call Save for that.
func (s *Store) Set(layer Layer, key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.layers[layer]
	if !ok {
		v = viper.New()
		s.layers[layer] = v
	}
	v.Set(key, value)
	s.remerge()
}

// Save serializes a single file-backed layer to its own file. Lower layers
// are never rewritten.
func (s *Store) Save(layer Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.files[layer]
	if !ok || path == "" {
		return fmt.Errorf("config layer %s is not file-backed", layer)
	}
	v, ok := s.layers[layer]
	if !ok {
		return fmt.Errorf("config layer %s has no values", layer)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config layer %s: %w", layer, err)
	}
	return nil
}

// GetString returns the merged string value at the dotted path.
func (s *Store) GetString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merged.GetString(key)
}

// GetInt returns the merged integer value at the dotted path.
func (s *Store) GetInt(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merged.GetInt(key)
}

// GetBool returns the merged boolean value at the dotted path.
func (s *Store) GetBool(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merged.GetBool(key)
}

// GetFloat returns the merged float value at the dotted path.
func (s *Store) GetFloat(key string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merged.GetFloat64(key)
}

// GetStringSlice returns the merged string-slice value at the dotted path.
func (s *Store) GetStringSlice(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merged.GetStringSlice(key)
}

// Keys returns every known dotted path in the merged view, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.merged.AllKeys()
	sort.Strings(keys)
	return keys
}
