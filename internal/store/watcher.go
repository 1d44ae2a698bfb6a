// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable application state: conversations,
// artifacts, and transient UI signals.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long a blob file must be quiet before it is
// reloaded.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watcher reloads the store when another instance rewrites a blob file.
// Reloads apply last-write-wins; writes made by this instance's own
// FileStorage are recognised by content hash and skipped, so a snapshot
// never rolls back newer in-memory state.
type Watcher struct {
	store    *Store
	blobs    *FileStorage
	fw       *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// WatchBlobs starts watching the blob directory for foreign writes.
// A non-positive debounce means DefaultWatchDebounce.
func WatchBlobs(store *Store, blobs *FileStorage, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(blobs.Dir()); err != nil {
		fw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		store:    store,
		blobs:    blobs,
		fw:       fw,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}

	go w.processEvents()
	go w.processPending()
	return w, nil
}

// processEvents turns filesystem events into pending reloads. Only writes
// to the known blob files count; atomic-write temp files are ignored.
func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			key, ok := w.blobs.KeyForPath(event.Name)
			if !ok {
				continue
			}
			w.mu.Lock()
			w.pending[key] = time.Now()
			w.mu.Unlock()

		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal; the store keeps serving from
			// memory.
		}
	}
}

// processPending reloads blobs once they have been quiet for the debounce
// window.
func (w *Watcher) processPending() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()

			w.mu.Lock()
			var ripe []string
			for key, at := range w.pending {
				if now.Sub(at) >= w.debounce {
					ripe = append(ripe, key)
					delete(w.pending, key)
				}
			}
			w.mu.Unlock()

			for _, key := range ripe {
				w.reload(key)
			}
		}
	}
}

// reload applies one blob file to the store. Unreadable or malformed blobs
// are skipped, keeping the last good in-memory state.
func (w *Watcher) reload(key string) {
	data, err := w.blobs.Read(key)
	if err != nil {
		return
	}
	if w.blobs.WroteLast(key, data) {
		return
	}

	switch key {
	case BlobConversations:
		_ = w.store.RestoreConversations(data)
	case BlobArtifacts:
		_ = w.store.RestoreArtifacts(data)
	}
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	return w.fw.Close()
}
