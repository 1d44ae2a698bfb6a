// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/provider"
	"github.com/jeranaias/forgechat/internal/search"
	"github.com/jeranaias/forgechat/internal/security"
	"github.com/jeranaias/forgechat/internal/server"
	"github.com/jeranaias/forgechat/internal/store"
	"github.com/jeranaias/forgechat/internal/transport"
)

// =============================================================================
// WORKBENCH
// =============================================================================

// Workbench bundles the long-lived pieces every chat surface shares:
// configuration, key sealing, the conversation store with persistence, the
// search index, and a transport client pointed at a provider proxy. When no
// external proxy origin is configured, opening a workbench starts an
// in-process proxy on an ephemeral loopback port.
type Workbench struct {
	Config   *config.Config
	Provider provider.Provider
	Keyring  *security.Keyring
	Store    *store.Store
	Blobs    *store.FileStorage
	Saver    *store.Saver
	Watcher  *store.Watcher
	Index    *search.Index
	Client   *transport.Client
	Adapter  *transport.Adapter

	proxy *server.Server // in-process proxy, nil when external
}

// WorkbenchOptions select the optional runtime pieces a surface needs.
type WorkbenchOptions struct {
	// Watch follows snapshot changes written by other processes.
	Watch bool
	// Index opens the full-text search index.
	Index bool
}

// OpenWorkbench assembles the shared runtime. Callers must Close it; Close
// flushes any pending snapshot before shutting the proxy down.
func OpenWorkbench(args Args, opts WorkbenchOptions) (*Workbench, error) {
	cfg := config.Global().Clone()

	p := provider.Provider(cfg.DefaultProvider)
	if args.Provider != "" {
		p = provider.Provider(args.Provider)
	}
	if !p.Known() {
		return nil, &UsageError{
			Message: fmt.Sprintf("unknown provider %q", string(p)),
			Hint:    "use anthropic, google, or local",
		}
	}
	if args.Model != "" {
		setModelFor(cfg, p, args.Model)
	}

	kr, err := security.Open()
	if err != nil {
		// Sealed keys will fail at decrypt time with a precise error;
		// plaintext keys and env overrides keep working.
		if !args.Quiet {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("warning:"), "keyring unavailable:", err)
		}
		kr = nil
	}

	stateDir, err := cfg.StateDir()
	if err != nil {
		return nil, fmt.Errorf("resolving state directory: %w", err)
	}

	w := &Workbench{
		Config:   cfg,
		Provider: p,
		Keyring:  kr,
		Store:    store.New(),
	}

	w.Blobs = store.NewFileStorage(stateDir)
	w.Store.Load(w.Blobs)
	w.Saver = store.NewSaver(w.Store, w.Blobs, store.DefaultSaveInterval)

	if opts.Watch {
		watcher, err := store.WatchBlobs(w.Store, w.Blobs, store.DefaultWatchDebounce)
		if err != nil {
			if !args.Quiet {
				fmt.Fprintln(os.Stderr, WarningStyle.Render("warning:"), "snapshot watcher disabled:", err)
			}
		} else {
			w.Watcher = watcher
		}
	}

	if opts.Index {
		idx, err := search.Open(filepath.Join(stateDir, "search-v1.db"))
		if err != nil {
			if !args.Quiet {
				fmt.Fprintln(os.Stderr, WarningStyle.Render("warning:"), "search disabled:", err)
			}
		} else {
			w.Index = idx
		}
	}

	origin := cfg.Proxy.Origin
	if origin == "" {
		w.proxy = server.NewServer(0)
		origin, err = w.proxy.StartEphemeral()
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("starting in-process proxy: %w", err)
		}
	}

	w.Client = transport.NewClient(origin)
	w.Adapter = transport.NewAdapter(w.Client, w.Store)
	return w, nil
}

// Close releases everything OpenWorkbench acquired. Safe on a partially
// constructed workbench.
func (w *Workbench) Close() {
	if w.Saver != nil {
		w.Saver.Close()
	}
	if w.Watcher != nil {
		w.Watcher.Close()
	}
	if w.Index != nil {
		w.Index.Close()
	}
	if w.proxy != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		w.proxy.Shutdown(ctx)
	}
}

// SyncIndex refreshes the search index from the store. Index errors are
// reported but never block the chat path.
func (w *Workbench) SyncIndex() error {
	if w.Index == nil {
		return nil
	}
	return w.Index.Sync(w.Store.Conversations())
}

// =============================================================================
// REQUEST ASSEMBLY
// =============================================================================

// BuildRequest assembles the proxy request for one exchange over msgs. The
// message list is normalised into the provider's wire schema here; the proxy
// forwards it untouched.
func (w *Workbench) BuildRequest(msgs []*model.Message, stream bool) (*provider.ChatRequest, error) {
	p := w.Provider
	key, err := w.Config.ProviderKey(p, w.Keyring)
	if err != nil {
		return nil, fmt.Errorf("resolving %s API key: %w", p, err)
	}
	if key == "" && p != provider.Local {
		return nil, fmt.Errorf("no API key configured for %s: run `forgechat config set-key %s`", p, p)
	}

	// Empty messages (aborted exchanges) would be rejected upstream.
	history := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsEmpty() {
			history = append(history, m)
		}
	}

	wire := provider.Normalise(provider.WireMessages(history), p)
	req := &provider.ChatRequest{
		APIKey: key,
		Model:  w.Config.ModelFor(p),
		Stream: stream,
	}

	switch p {
	case provider.Anthropic:
		req.Messages = wire
		req.MaxTokens = w.Config.Anthropic.MaxTokens
	case provider.Google:
		req.Contents = wire
	case provider.Local:
		req.Messages = wire
		req.BaseURL = w.Config.Local.BaseURL
	}
	return req, nil
}

// resolveConversation finds a conversation by exact id, then by unique id
// prefix so listings can be referenced without pasting the whole id.
func resolveConversation(w *Workbench, token string) (*model.Conversation, error) {
	if conv, ok := w.Store.Conversation(token); ok {
		return conv, nil
	}

	var match string
	var count int
	for _, meta := range w.Store.ConversationMetas() {
		if strings.HasPrefix(meta.ID, token) {
			match = meta.ID
			count++
		}
	}
	switch count {
	case 0:
		return nil, &NotFoundError{Kind: "conversation", ID: token}
	case 1:
		conv, _ := w.Store.Conversation(match)
		return conv, nil
	default:
		return nil, fmt.Errorf("conversation id %q is ambiguous (%d matches)", token, count)
	}
}

// setModelFor applies a per-run model override to the provider's section.
func setModelFor(cfg *config.Config, p provider.Provider, m string) {
	switch p {
	case provider.Anthropic:
		cfg.Anthropic.Model = m
	case provider.Google:
		cfg.Google.Model = m
	case provider.Local:
		cfg.Local.Model = m
	}
}

// =============================================================================
// INTERACTIVE LOGGING
// =============================================================================

// SilenceLogging reroutes the global logger away from the terminal while an
// interactive surface owns it. FORGECHAT_DEBUG=1 sends the stream to
// debug.log under the config directory instead of discarding it. The
// returned func restores the previous writer.
func SilenceLogging() func() {
	prev := log.Writer()

	if os.Getenv("FORGECHAT_DEBUG") != "" {
		if dir, err := config.ConfigDir(); err == nil {
			path := filepath.Join(dir, "debug.log")
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil {
				log.SetOutput(f)
				return func() {
					log.SetOutput(prev)
					f.Close()
				}
			}
		}
	}

	log.SetOutput(io.Discard)
	return func() { log.SetOutput(prev) }
}
