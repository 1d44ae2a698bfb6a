// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable application state.
//
// One Store owns three slices of state: conversations with their messages,
// artifacts indexed by (conversation, artifact) id, and transient UI
// signals. Writers mutate through named operations that each bump the
// owning conversation's UpdatedAt and emit an Event; readers get deep
// copies. Observers subscribe with Store.Subscribe.
//
// Persistence is an observer: Saver snapshots the conversation and artifact
// slices to a FileStorage after each mutation, rate-limited, with a
// trailing flush on Close. UI signals never hit disk. Watcher feeds foreign
// writes to the blob files back into the store, last-write-wins.
//
// Usage:
//
//	st := store.New()
//	blobs := store.NewFileStorage(dir)
//	st.Load(blobs)
//	saver := store.NewSaver(st, blobs, 0)
//	defer saver.Close()
package store
