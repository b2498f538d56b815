// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package device

import (
	"sync"
	"time"
)

// LocalRegistry is the local manager's in-memory device set: one map per
// capture category, keyed by device id. The scan loop replaces a category
// wholesale on every pass; readers get deep-copied snapshots.
type LocalRegistry struct {
	mu    sync.RWMutex
	video map[string]*Local
	audio map[string]*Local
}

// NewLocalRegistry creates an empty local registry.
func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{
		video: make(map[string]*Local),
		audio: make(map[string]*Local),
	}
}

// ReplaceVideo swaps the whole video category for the scan result.
func (r *LocalRegistry) ReplaceVideo(devices map[string]*Local) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video = devices
}

// ReplaceAudio swaps the whole audio category for the scan result.
func (r *LocalRegistry) ReplaceAudio(devices map[string]*Local) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = devices
}

// Get looks a device up by id across both categories.
func (r *LocalRegistry) Get(id string) (*Local, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.video[id]; ok {
		return d.Clone(), true
	}
	if d, ok := r.audio[id]; ok {
		return d.Clone(), true
	}
	return nil, false
}

// Video returns a snapshot copy of the video category.
func (r *LocalRegistry) Video() map[string]*Local {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneLocals(r.video)
}

// Audio returns a snapshot copy of the audio category.
func (r *LocalRegistry) Audio() map[string]*Local {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneLocals(r.audio)
}

func cloneLocals(in map[string]*Local) map[string]*Local {
	out := make(map[string]*Local, len(in))
	for id, d := range in {
		out[id] = d.Clone()
	}
	return out
}

// NetworkRegistry is the network manager's in-memory device set, a single
// map keyed by the composite "ip:port" id.
type NetworkRegistry struct {
	mu      sync.RWMutex
	devices map[string]*Network
}

// NewNetworkRegistry creates an empty network registry.
func NewNetworkRegistry() *NetworkRegistry {
	return &NetworkRegistry{devices: make(map[string]*Network)}
}

// Get returns a copy of the device with the given id.
func (r *NetworkRegistry) Get(id string) (*Network, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// List returns a snapshot copy of every device.
func (r *NetworkRegistry) List() map[string]*Network {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Network, len(r.devices))
	for id, d := range r.devices {
		out[id] = d.Clone()
	}
	return out
}

// Insert adds a device. Returns false when the id is already present.
func (r *NetworkRegistry) Insert(d *Network) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d.ID]; ok {
		return false
	}
	r.devices[d.ID] = d.Clone()
	return true
}

// Replace stores the device, overwriting any existing entry with its id.
func (r *NetworkRegistry) Replace(d *Network) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.ID] = d.Clone()
}

// Remove deletes by id. Returns false for unknown ids.
func (r *NetworkRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[id]; !ok {
		return false
	}
	delete(r.devices, id)
	return true
}

// UpdateStatus assigns the status and stamps the check time. Returns the
// previous status and whether the device exists.
func (r *NetworkRegistry) UpdateStatus(id string, status Status) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return StatusUnknown, false
	}
	previous := d.Status
	d.Status = status
	d.LastChecked = time.Now().UTC()
	return previous, true
}

// Len returns the number of registered devices.
func (r *NetworkRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
