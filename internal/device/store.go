// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rapidaai/streamhub/pkg/commons"
)

// StoreFileName is the file under the storage path that holds the persisted
// network device records.
const StoreFileName = "network_devices.json"

// persistedDevice is the on-disk schema. Credentials are deliberately
// absent: restored devices always come back with empty username/password.
type persistedDevice struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Type     Type              `json:"type"`
	IP       string            `json:"ip"`
	Port     int               `json:"port"`
	Protocol Protocol          `json:"protocol"`
	Status   Status            `json:"status"`
	Streams  map[string]string `json:"streams"`
}

// Store persists the network device registry as a JSON array on disk.
// Writes are atomic (temp file + rename) and serialized.
type Store struct {
	mu     sync.Mutex
	logger commons.Logger
	path   string
}

// NewStore creates a store rooted at storagePath. The directory is created
// lazily on first save.
func NewStore(logger commons.Logger, storagePath string) *Store {
	return &Store{
		logger: logger,
		path:   filepath.Join(storagePath, StoreFileName),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Save writes every device to disk, stripping credentials.
func (s *Store) Save(devices map[string]*Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]persistedDevice, 0, len(devices))
	for _, d := range devices {
		records = append(records, persistedDevice{
			ID:       d.ID,
			Name:     d.Name,
			Type:     d.Type,
			IP:       d.IP,
			Port:     d.Port,
			Protocol: d.Protocol,
			Status:   d.Status,
			Streams:  d.Streams,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal device records: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("could not create storage directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("could not write device store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("could not replace device store: %w", err)
	}
	return nil
}

// Load reads the persisted records back. A missing file yields an empty
// map. A record that fails validation is skipped with a logged error; the
// rest still load.
func (s *Store) Load() (map[string]*Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := make(map[string]*Network)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return devices, nil
		}
		return devices, fmt.Errorf("could not read device store: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return devices, fmt.Errorf("could not parse device store: %w", err)
	}

	for i, raw := range records {
		var rec persistedDevice
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Errorw("skipping unreadable device record",
				"index", i, "error", err.Error())
			continue
		}
		if rec.ID == "" || rec.IP == "" || rec.Port < 1 || rec.Port > 65535 {
			s.logger.Errorw("skipping invalid device record",
				"index", i, "id", rec.ID)
			continue
		}
		streams := rec.Streams
		if streams == nil {
			streams = make(map[string]string)
		}
		devices[rec.ID] = &Network{
			Header: Header{
				ID:     rec.ID,
				Name:   rec.Name,
				Type:   rec.Type,
				Status: rec.Status,
			},
			IP:       rec.IP,
			Port:     rec.Port,
			Protocol: rec.Protocol,
			Streams:  streams,
		}
	}
	return devices, nil
}
