// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/provider"
	"github.com/jeranaias/forgechat/internal/store"
	"github.com/jeranaias/forgechat/internal/ui/styles"
)

// =============================================================================
// VIEW STATE
// =============================================================================

// State represents the exchange lifecycle the view is in.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Assistant reply in flight
)

// Focus names the region receiving key input.
type Focus int

const (
	FocusComposer Focus = iota
	FocusTranscript
	FocusPanel
)

// =============================================================================
// OPTIONS
// =============================================================================

// Sender runs one exchange against the proxy, landing the reply in the
// store under the given identities. *transport.Adapter satisfies it.
type Sender interface {
	Send(ctx context.Context, p provider.Provider, req *provider.ChatRequest, convID, msgID string) error
}

// Options wires the chat surface to the rest of the application. Store and
// Sender are required; the rest default sensibly.
type Options struct {
	Store    *store.Store
	Sender   Sender
	Provider provider.Provider
	Config   *config.Config
	Version  string

	// BuildRequest assembles the provider-native request for a history.
	BuildRequest func(msgs []*model.Message, stream bool) (*provider.ChatRequest, error)

	// SyncIndex refreshes the search index after an exchange. Optional.
	SyncIndex func() error
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat workbench.
type Model struct {
	opts Options
	keys KeyMap

	// State
	state State
	focus Focus

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int
	ready  bool

	// Conversation shown in the transcript. The title is cached so View
	// never takes the store lock.
	convID    string
	convTitle string

	// Assistant message the in-flight exchange is filling.
	streamMsgID string
	guard       *streamGuard // Pointer: Bubble Tea copies the model on update

	// UI components
	viewport viewport.Model
	composer textarea.Model
	spinner  spinner.Model
	help     help.Model

	// Artifact panel: snapshot of the conversation's artifacts plus the
	// selected row. Panel visibility lives in the store's UI state.
	arts     []*model.Artifact
	panelIdx int

	// Snapshot of transient UI signals, refreshed on store events.
	ui store.UIState

	// Store events mark slices dirty; one scheduled tick repaints them all.
	dirtyConvs    bool
	dirtyArts     bool
	dirtyUI       bool
	refreshQueued bool

	// Render caches keyed by message / artifact identity. Replaced wholesale
	// on resize since wrapping width changes every entry.
	mdCache map[string]string
	hlCache map[string]string

	// Markdown renderer bound to the current wrap width.
	md *glamour.TermRenderer

	// Transient status line.
	status    string
	statusErr bool
	statusGen int
}

// New creates a chat model over opts. Run ensures an active conversation
// exists before calling this.
func New(opts Options) Model {
	theme := styles.New(80, 24)

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.Prompt = "┃ "
	ta.CharLimit = 8192
	ta.SetHeight(composerHeight)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	// Enter submits; newline moves to alt+enter / ctrl+j.
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Focus()

	vp := viewport.New(80, 20)

	// ASCII frames render everywhere, including serial consoles.
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 30,
	}
	sp.Style = theme.Spinner

	var convID string
	var ui store.UIState
	if opts.Store != nil {
		convID = opts.Store.ActiveConversationID()
		ui = opts.Store.UI()
	}

	m := Model{
		opts:     opts,
		keys:     DefaultKeyMap(),
		state:    StateReady,
		focus:    FocusComposer,
		theme:    theme,
		convID:   convID,
		ui:       ui,
		guard:    newStreamGuard(),
		viewport: vp,
		composer: ta,
		spinner:  sp,
		help:     help.New(),
		mdCache:  make(map[string]string),
		hlCache:  make(map[string]string),
	}
	m.refreshArtifacts()
	return m
}

// Init starts cursor blinking.
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

// Streaming reports whether an exchange is in flight.
func (m Model) Streaming() bool {
	return m.state == StateStreaming
}

// markdownEnabled reports whether finalized replies render through glamour.
func (m Model) markdownEnabled() bool {
	return m.opts.Config == nil || m.opts.Config.UI.Markdown
}

// themeName returns the configured theme name, empty for auto detection.
func (m Model) themeName() string {
	if m.opts.Config == nil {
		return ""
	}
	return m.opts.Config.UI.Theme
}

// =============================================================================
// STREAM GUARD
// =============================================================================

// streamGuard holds the in-flight exchange's cancel function behind a
// mutex. It lives behind a pointer so model copies share one slot.
type streamGuard struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func newStreamGuard() *streamGuard {
	return &streamGuard{}
}

// arm stores the cancel function for a new exchange, cancelling any
// previous one first.
func (g *streamGuard) arm(fn context.CancelFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.cancel = fn
}

// stop cancels the in-flight exchange. Safe to call repeatedly.
func (g *streamGuard) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}
