// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the observable application state: conversations,
// artifacts, and transient UI signals.
package store

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/util"
)

// Blob keys. The version suffix allows a future schema change to coexist
// with old state files.
const (
	BlobConversations = "conversations-v1"
	BlobArtifacts     = "artifacts-v1"
)

// =============================================================================
// FILE STORAGE
// =============================================================================

// FileStorage maps blob keys onto JSON files in one directory. Writes are
// atomic, and the hash of the last write per key is remembered so a reload
// triggered by our own write can be told apart from another instance's.
type FileStorage struct {
	dir string

	mu          sync.Mutex
	lastWritten map[string][sha256.Size]byte
}

// NewFileStorage creates file-backed blob storage rooted at dir.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{
		dir:         dir,
		lastWritten: make(map[string][sha256.Size]byte),
	}
}

// DefaultStateDir returns ~/.forgechat/state.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".forgechat", "state"), nil
}

// Dir returns the storage directory.
func (f *FileStorage) Dir() string {
	return f.dir
}

// Path returns the file path backing a blob key.
func (f *FileStorage) Path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// KeyForPath maps a file path back onto a known blob key.
func (f *FileStorage) KeyForPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".json") {
		return "", false
	}
	key := strings.TrimSuffix(base, ".json")
	if key == BlobConversations || key == BlobArtifacts {
		return key, true
	}
	return "", false
}

// Read returns a blob's bytes.
func (f *FileStorage) Read(key string) ([]byte, error) {
	return os.ReadFile(f.Path(key))
}

// Write persists a blob atomically. Chat history is private data, so the
// file is 0600 under a 0700 directory.
func (f *FileStorage) Write(key string, data []byte) error {
	if err := util.AtomicWriteFilePrivate(f.Path(key), data, 0600); err != nil {
		return err
	}
	f.mu.Lock()
	f.lastWritten[key] = sha256.Sum256(data)
	f.mu.Unlock()
	return nil
}

// WroteLast reports whether data is byte-identical to this instance's most
// recent write of the key.
func (f *FileStorage) WroteLast(key string, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.lastWritten[key]
	return ok && h == sha256.Sum256(data)
}

// =============================================================================
// BLOB SCHEMA
// =============================================================================

type conversationsBlob struct {
	ActiveConversationID string                `json:"activeConversationId,omitempty"`
	Conversations        []*model.Conversation `json:"conversations"`
}

type artifactsBlob struct {
	ArtifactsByConversation map[string][]*model.Artifact `json:"artifactsByConversation"`
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// SnapshotConversations serialises the conversation state. The clones are
// taken under the read lock; a message still streaming is captured with its
// text so far.
func (s *Store) SnapshotConversations() ([]byte, error) {
	s.mu.RLock()
	blob := conversationsBlob{
		ActiveConversationID: s.activeConvID,
		Conversations:        make([]*model.Conversation, 0, len(s.convOrder)),
	}
	for _, id := range s.convOrder {
		blob.Conversations = append(blob.Conversations, s.conversations[id].Clone())
	}
	s.mu.RUnlock()

	return json.MarshalIndent(blob, "", "  ")
}

// SnapshotArtifacts serialises the artifact state in first-open order.
func (s *Store) SnapshotArtifacts() ([]byte, error) {
	s.mu.RLock()
	blob := artifactsBlob{
		ArtifactsByConversation: make(map[string][]*model.Artifact, len(s.artifacts)),
	}
	for convID, order := range s.artifactOrder {
		arts := make([]*model.Artifact, 0, len(order))
		for _, id := range order {
			if art, ok := s.artifacts[convID][id]; ok {
				arts = append(arts, art.Clone())
			}
		}
		if len(arts) > 0 {
			blob.ArtifactsByConversation[convID] = arts
		}
	}
	s.mu.RUnlock()

	return json.MarshalIndent(blob, "", "  ")
}

// Save writes both snapshots to the blob store.
func (s *Store) Save(blobs *FileStorage) error {
	convData, err := s.SnapshotConversations()
	if err != nil {
		return err
	}
	artData, err := s.SnapshotArtifacts()
	if err != nil {
		return err
	}
	if err := blobs.Write(BlobConversations, convData); err != nil {
		return err
	}
	return blobs.Write(BlobArtifacts, artData)
}

// =============================================================================
// RESTORE
// =============================================================================

// RestoreConversations replaces the conversation state with a decoded blob.
// On decode failure the current state is left untouched.
func (s *Store) RestoreConversations(data []byte) error {
	var blob conversationsBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return err
	}

	s.mu.Lock()
	s.conversations = make(map[string]*model.Conversation, len(blob.Conversations))
	s.convOrder = make([]string, 0, len(blob.Conversations))
	for _, conv := range blob.Conversations {
		if conv == nil || conv.ID == "" {
			continue
		}
		if conv.Messages == nil {
			conv.Messages = make([]*model.Message, 0)
		}
		if _, dup := s.conversations[conv.ID]; dup {
			continue
		}
		s.conversations[conv.ID] = conv
		s.convOrder = append(s.convOrder, conv.ID)
	}
	s.activeConvID = ""
	if _, ok := s.conversations[blob.ActiveConversationID]; ok {
		s.activeConvID = blob.ActiveConversationID
	}
	s.mu.Unlock()

	s.notify(Event{Kind: EventConversations})
	return nil
}

// RestoreArtifacts replaces the artifact state with a decoded blob. On
// decode failure the current state is left untouched.
func (s *Store) RestoreArtifacts(data []byte) error {
	var blob artifactsBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return err
	}

	s.mu.Lock()
	s.artifacts = make(map[string]map[string]*model.Artifact, len(blob.ArtifactsByConversation))
	s.artifactOrder = make(map[string][]string, len(blob.ArtifactsByConversation))
	for convID, arts := range blob.ArtifactsByConversation {
		if convID == "" {
			continue
		}
		byID := make(map[string]*model.Artifact, len(arts))
		order := make([]string, 0, len(arts))
		for _, art := range arts {
			if art == nil || art.ID == "" {
				continue
			}
			if art.ConversationID == "" {
				art.ConversationID = convID
			}
			if _, dup := byID[art.ID]; !dup {
				order = append(order, art.ID)
			}
			byID[art.ID] = art
		}
		if len(byID) > 0 {
			s.artifacts[convID] = byID
			s.artifactOrder[convID] = order
		}
	}
	s.mu.Unlock()

	s.notify(Event{Kind: EventArtifacts})
	return nil
}

// Load rehydrates the store at startup. Missing or malformed blobs leave
// the corresponding state empty.
func (s *Store) Load(blobs *FileStorage) {
	if data, err := blobs.Read(BlobConversations); err == nil {
		_ = s.RestoreConversations(data)
	}
	if data, err := blobs.Read(BlobArtifacts); err == nil {
		_ = s.RestoreArtifacts(data)
	}
}
