// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/forgechat/internal/artifact"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/store"
)

// historyFileName is the REPL history file under the config directory.
const historyFileName = "chat_history"

// =============================================================================
// LINE EDITOR
// =============================================================================

// ChatCLI wraps the line editor with history persistence. The prompt string
// stays unstyled: ANSI escapes in the prompt break the editor's column math.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI initialises the line editor and loads prior history.
func NewChatCLI() (*ChatCLI, error) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		c.historyFile = filepath.Join(dir, historyFileName)
		if f, err := os.Open(c.historyFile); err == nil {
			c.line.ReadHistory(f)
			f.Close()
		}
	}
	return c, nil
}

// ReadInput reads one line. A pending artifact reference pre-fills the
// prompt so the user finishes the sentence around it.
func (c *ChatCLI) ReadInput(w *Workbench) (string, error) {
	const prompt = "you> "

	var input string
	var err error
	if ref := w.Store.UI().ReferenceInsert; ref != nil {
		w.Store.ClearReferenceInsertRequest()
		seed := fmt.Sprintf("[artifact:%s] ", ref.ArtifactID)
		input, err = c.line.PromptWithSuggestion(prompt, seed, len(seed))
	} else {
		input, err = c.line.Prompt(prompt)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes the line history under the config directory, private
// to the user.
func (c *ChatCLI) SaveHistory() error {
	if c.historyFile == "" {
		return nil
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = c.line.WriteHistory(f)
	return err
}

// Close persists history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// HandleChatCommand runs the line-oriented chat REPL.
func HandleChatCommand(args Args) error {
	if !CanPrompt() {
		return &UsageError{
			Message: "chat needs an interactive terminal",
			Hint:    "use `forgechat ask` for scripted prompts",
		}
	}

	w, err := OpenWorkbench(args, WorkbenchOptions{Watch: true, Index: true})
	if err != nil {
		return err
	}
	defer w.Close()

	restore := SilenceLogging()
	defer restore()

	chat, err := NewChatCLI()
	if err != nil {
		return err
	}
	defer chat.Close()

	// Resume the most recent conversation; start fresh when there is none.
	if w.Store.ActiveConversation() == nil {
		if metas := w.Store.ConversationMetas(); len(metas) > 0 {
			w.Store.SetActiveConversation(metas[0].ID)
		} else {
			conv := w.Store.AddConversation("", "")
			w.Store.SetActiveConversation(conv.ID)
		}
	}

	chat.printWelcome(w)

	// Ctrl+C cancels the in-flight exchange, not the session. The line
	// editor owns the terminal while prompting, so the handler only fires
	// between prompts.
	var cancelMu sync.Mutex
	var cancelActive context.CancelFunc
	setCancel := func(fn context.CancelFunc) {
		cancelMu.Lock()
		cancelActive = fn
		cancelMu.Unlock()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			cancelMu.Lock()
			if cancelActive != nil {
				cancelActive()
			}
			cancelMu.Unlock()
		}
	}()

	for {
		input, err := chat.ReadInput(w)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				chat.printExitSummary(w)
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := chat.handleSlash(w, input)
			if err != nil {
				DisplayError(err)
			}
			if quit {
				chat.printExitSummary(w)
				return nil
			}
			continue
		}
		if input == "exit" || input == "quit" {
			chat.printExitSummary(w)
			return nil
		}

		if err := chat.processMessage(w, setCancel, input); err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println(warnStyle.Render("\n[cancelled]"))
				continue
			}
			DisplayError(err)
		}
	}
}

// processMessage runs one exchange. Both turns land in the store, so
// artifact extraction, title generation, and persistence follow without
// REPL involvement.
func (c *ChatCLI) processMessage(w *Workbench, setCancel func(context.CancelFunc), input string) error {
	conv := w.Store.ActiveConversation()
	if conv == nil {
		conv = w.Store.AddConversation("", "")
		w.Store.SetActiveConversation(conv.ID)
	}

	userMsg := model.NewUserMessage(input)
	w.Store.AppendMessage(conv.ID, userMsg)

	history := append(conv.Messages, userMsg)
	req, err := w.BuildRequest(history, true)
	if err != nil {
		return err
	}

	assistant := model.NewAssistantMessage()
	w.Store.AppendMessage(conv.ID, assistant)
	artsBefore := len(w.Store.Artifacts(conv.ID))

	ctx, cancel := context.WithCancel(context.Background())
	setCancel(cancel)
	defer func() {
		setCancel(nil)
		cancel()
	}()

	// Plain mode tails the growing message live; markdown mode waits for
	// the finished text and renders it once.
	var unsub func()
	if !w.Config.UI.Markdown {
		fmt.Println()
		printed := 0
		unsub = w.Store.Subscribe(func(ev store.Event) {
			if ev.Kind != store.EventConversations || ev.ConversationID != conv.ID {
				return
			}
			cur, ok := w.Store.Conversation(conv.ID)
			if !ok {
				return
			}
			msg := cur.MessageByID(assistant.ID)
			if msg == nil {
				return
			}
			text := msg.Content.PlainText()
			if len(text) > printed {
				fmt.Print(text[printed:])
				printed = len(text)
			}
		})
	}

	sendErr := w.Adapter.Send(ctx, w.Provider, req, conv.ID, assistant.ID)

	if unsub != nil {
		unsub()
		fmt.Println()
	}
	if sendErr != nil {
		return sendErr
	}

	if w.Config.UI.Markdown {
		c.printReply(w, conv.ID, assistant.ID)
	}
	if extracted := len(w.Store.Artifacts(conv.ID)) - artsBefore; extracted > 0 {
		fmt.Println(infoStyle.Render(fmt.Sprintf("%d artifact(s) captured; /artifacts to list", extracted)))
	}

	_ = w.SyncIndex()
	return nil
}

// printReply renders the finished assistant message. Artifact blocks are
// replaced with their placeholder labels; full contents live in the
// artifact store.
func (c *ChatCLI) printReply(w *Workbench, convID, msgID string) {
	conv, ok := w.Store.Conversation(convID)
	if !ok {
		return
	}
	msg := conv.MessageByID(msgID)
	if msg == nil || msg.IsEmpty() {
		return
	}

	fmt.Println()
	fmt.Println(promptStyle.Render(msg.Role.DisplayName() + ":"))
	fmt.Println(renderMarkdown(artifact.Strip(msg.DisplayText())))
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// slashCommands names every REPL command for /help, in display order.
var slashCommands = []struct{ name, args, desc string }{
	{"/new", "[title]", "start a conversation"},
	{"/list", "", "list conversations"},
	{"/switch", "<id>", "make a conversation active"},
	{"/title", "<text>", "retitle the active conversation"},
	{"/artifacts", "", "list artifacts in the active conversation"},
	{"/insert", "<artifact-id>", "pre-fill the next prompt with a reference"},
	{"/delete", "[id]", "delete a conversation and its artifacts"},
	{"/search", "<query>", "full-text search across conversations"},
	{"/export", "[id] [--format md|json] [--out dir]", "export a conversation"},
	{"/help", "", "show this help"},
	{"/quit", "", "save and exit"},
}

// handleSlash dispatches one slash command. The returned bool requests
// session exit.
func (c *ChatCLI) handleSlash(w *Workbench, input string) (bool, error) {
	fields := strings.Fields(input)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h", "/?":
		c.printHelp()

	case "/new":
		conv := w.Store.AddConversation("", strings.Join(rest, " "))
		w.Store.SetActiveConversation(conv.ID)
		fmt.Println(SuccessStyle.Render("started"), DimStyle.Render(conv.ID))

	case "/list":
		c.printConversations(w)

	case "/switch":
		if len(rest) == 0 {
			return false, ErrMissingArgument("conversation id", "/switch conv_01…")
		}
		conv, err := resolveConversation(w, rest[0])
		if err != nil {
			return false, err
		}
		w.Store.SetActiveConversation(conv.ID)
		fmt.Println(SuccessStyle.Render("switched to"), ValueStyle.Render(conv.Title), DimStyle.Render("("+conv.ID+")"))

	case "/title":
		if len(rest) == 0 {
			return false, ErrMissingArgument("title", "/title Kubernetes debugging")
		}
		conv := w.Store.ActiveConversation()
		if conv == nil {
			return false, errors.New("no active conversation")
		}
		w.Store.SetTitle(conv.ID, strings.Join(rest, " "))
		fmt.Println(SuccessStyle.Render("retitled"))

	case "/artifacts":
		c.printArtifacts(w)

	case "/insert":
		if len(rest) == 0 {
			return false, ErrMissingArgument("artifact id", "/insert art_1")
		}
		conv := w.Store.ActiveConversation()
		if conv == nil {
			return false, errors.New("no active conversation")
		}
		if _, ok := w.Store.Artifact(conv.ID, rest[0]); !ok {
			return false, &NotFoundError{Kind: "artifact", ID: rest[0]}
		}
		w.Store.RequestReferenceInsert(rest[0])

	case "/delete":
		return false, c.deleteConversation(w, rest)

	case "/search":
		return false, c.searchConversations(w, strings.Join(rest, " "))

	case "/export":
		return false, c.exportFromREPL(w, rest)

	default:
		return false, &UsageError{Message: "unknown command " + cmd, Hint: "/help lists commands"}
	}
	return false, nil
}

// deleteConversation removes the named (or active) conversation after a
// confirmation prompt.
func (c *ChatCLI) deleteConversation(w *Workbench, rest []string) error {
	conv := w.Store.ActiveConversation()
	if len(rest) > 0 {
		var err error
		conv, err = resolveConversation(w, rest[0])
		if err != nil {
			return err
		}
	}
	if conv == nil {
		return errors.New("no active conversation")
	}

	answer, err := c.line.Prompt(fmt.Sprintf("delete %q and its artifacts? [y/N] ", conv.Title))
	if err != nil {
		return nil // aborted prompt means no
	}
	if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
		fmt.Println(infoStyle.Render("kept"))
		return nil
	}

	w.Store.DeleteConversation(conv.ID)
	if w.Store.ActiveConversation() == nil {
		if metas := w.Store.ConversationMetas(); len(metas) > 0 {
			w.Store.SetActiveConversation(metas[0].ID)
		}
	}
	_ = w.SyncIndex()
	fmt.Println(SuccessStyle.Render("deleted"))
	return nil
}

// searchConversations prints full-text matches across all conversations.
func (c *ChatCLI) searchConversations(w *Workbench, query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrMissingArgument("query", "/search worker pool")
	}
	if w.Index == nil {
		return errors.New("search index unavailable")
	}
	if err := w.SyncIndex(); err != nil {
		return err
	}

	results, err := w.Index.Search(query, 10)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println(infoStyle.Render("no matches"))
		return nil
	}
	for _, r := range results {
		fmt.Printf("  %s  %s\n", HighlightStyle.Render(r.Title), DimStyle.Render(r.ConversationID))
		fmt.Printf("    %s\n", r.Snippet)
	}
	return nil
}

// exportFromREPL exports the named (or active) conversation.
func (c *ChatCLI) exportFromREPL(w *Workbench, rest []string) error {
	p := NewArgParser(rest)

	conv := w.Store.ActiveConversation()
	if p.PositionalCount() > 0 {
		var err error
		conv, err = resolveConversation(w, p.Positional(0))
		if err != nil {
			return err
		}
	}
	if conv == nil {
		return errors.New("no active conversation")
	}

	path, err := exportConversationTo(w, conv, p.FlagOrDefault("format", "md"), p.FlagOrDefault("out", "."))
	if err != nil {
		return err
	}
	fmt.Println(SuccessStyle.Render("exported"), ValueStyle.Render(path))
	return nil
}

// =============================================================================
// REPL OUTPUT
// =============================================================================

func (c *ChatCLI) printWelcome(w *Workbench) {
	fmt.Println(welcomeStyle.Render("forgechat " + Version))
	if conv := w.Store.ActiveConversation(); conv != nil {
		fmt.Println(infoStyle.Render(fmt.Sprintf("conversation: %s (%d messages)", conv.Title, conv.MessageCount())))
	}
	fmt.Println(infoStyle.Render(fmt.Sprintf("provider: %s | model: %s", w.Provider, w.Config.ModelFor(w.Provider))))
	fmt.Println(infoStyle.Render("/help lists commands; Ctrl+C cancels a streaming reply"))
	fmt.Println()
}

func (c *ChatCLI) printHelp() {
	fmt.Println(TitleStyle.Render("Commands"))
	for _, sc := range slashCommands {
		left := sc.name
		if sc.args != "" {
			left += " " + sc.args
		}
		fmt.Printf("  %-44s %s\n", commandStyle.Render(left), sc.desc)
	}
}

func (c *ChatCLI) printConversations(w *Workbench) {
	metas := w.Store.ConversationMetas()
	if len(metas) == 0 {
		fmt.Println(infoStyle.Render("no conversations yet; /new starts one"))
		return
	}
	active := w.Store.ActiveConversationID()
	for _, m := range metas {
		marker := "  "
		if m.ID == active {
			marker = promptStyle.Render("* ")
		}
		fmt.Printf("%s%s\n", marker, ValueStyle.Render(m.Title))
		fmt.Printf("    %s\n", DimStyle.Render(fmt.Sprintf("%s · %d messages · %s",
			m.ID, m.MessageCount, m.UpdatedAt.Local().Format("Jan 2 15:04"))))
	}
}

func (c *ChatCLI) printArtifacts(w *Workbench) {
	conv := w.Store.ActiveConversation()
	if conv == nil {
		fmt.Println(infoStyle.Render("no active conversation"))
		return
	}
	arts := w.Store.Artifacts(conv.ID)
	if len(arts) == 0 {
		fmt.Println(infoStyle.Render("no artifacts yet"))
		return
	}
	for _, a := range arts {
		partial := ""
		if !a.IsComplete {
			partial = warnStyle.Render(" (partial)")
		}
		fmt.Printf("  %s  %s%s\n", HighlightStyle.Render(a.ID), ValueStyle.Render(a.DisplayTitle()), partial)
		fmt.Printf("    %s\n", DimStyle.Render(fmt.Sprintf("%s · %d bytes", a.Type, len(a.Content))))
	}
}

func (c *ChatCLI) printExitSummary(w *Workbench) {
	fmt.Println()
	if conv := w.Store.ActiveConversation(); conv != nil && !conv.IsEmpty() {
		fmt.Println(infoStyle.Render(fmt.Sprintf("saved %q (%d messages)", conv.Title, conv.MessageCount())))
	}
}
