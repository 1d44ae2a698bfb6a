// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable application state: conversations,
// artifacts, and transient UI signals.
package store

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSaveInterval is the minimum spacing between snapshots. Streaming
// appends mutate the store on every delta; snapshotting each one would
// hammer the disk for no benefit.
const DefaultSaveInterval = 500 * time.Millisecond

// Saver observes the store and persists snapshots, rate-limited, with a
// trailing flush on Close. Eventual consistency: after the last mutation
// plus one interval the blobs match memory.
type Saver struct {
	store *Store
	blobs *FileStorage

	limiter *rate.Limiter
	dirty   atomic.Bool
	kick    chan struct{}
	stop    chan struct{}
	done    chan struct{}

	unsub     func()
	closeOnce sync.Once
}

// NewSaver subscribes to the store and starts the snapshot loop.
// A non-positive minInterval means DefaultSaveInterval.
func NewSaver(store *Store, blobs *FileStorage, minInterval time.Duration) *Saver {
	if minInterval <= 0 {
		minInterval = DefaultSaveInterval
	}
	sv := &Saver{
		store:   store,
		blobs:   blobs,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	sv.unsub = store.Subscribe(sv.onEvent)
	go sv.run()
	return sv
}

// onEvent marks state dirty on persisted-slice mutations. UI signals are
// transient and never hit disk.
func (sv *Saver) onEvent(ev Event) {
	if ev.Kind == EventUI {
		return
	}
	sv.dirty.Store(true)
	select {
	case sv.kick <- struct{}{}:
	default:
	}
}

func (sv *Saver) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sv.stop
		cancel()
	}()

	for {
		select {
		case <-sv.stop:
			sv.flush()
			close(sv.done)
			return
		case <-sv.kick:
			if err := sv.limiter.Wait(ctx); err != nil {
				// Stopping; the stop branch does the trailing flush.
				continue
			}
			sv.flush()
		}
	}
}

// flush snapshots if anything changed since the last snapshot. A failed
// write leaves the state dirty so the next mutation retries; the store
// keeps serving from memory either way.
func (sv *Saver) flush() {
	if !sv.dirty.Swap(false) {
		return
	}
	if err := sv.store.Save(sv.blobs); err != nil {
		sv.dirty.Store(true)
		log.Printf("STORE_SAVE_FAILED | %v", err)
	}
}

// Flush forces an immediate snapshot of any unsaved state.
func (sv *Saver) Flush() {
	sv.flush()
}

// Close stops observing, performs the trailing flush, and waits for the
// loop to exit.
func (sv *Saver) Close() {
	sv.closeOnce.Do(func() {
		sv.unsub()
		close(sv.stop)
	})
	<-sv.done
}
