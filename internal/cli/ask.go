// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/ui/styles"
)

// File attachment limits.
const (
	// maxAskFileSize caps --file attachments. Bigger files should move
	// through the hosted file APIs, not inline prompt context.
	maxAskFileSize = 50 * 1024

	// maxImageFileSize caps --image attachments, matching the provider
	// inline-image ceiling.
	maxImageFileSize = 5 * 1024 * 1024
)

// =============================================================================
// ASK COMMAND
// =============================================================================

// HandleAsk handles `forgechat ask <prompt>`: a single exchange with no
// conversation state. Replies stream to stdout as they arrive; on a
// terminal with markdown enabled, the reply is collected and rendered
// through glamour instead.
func HandleAsk(args Args) error {
	p := NewArgParser(args.Raw)
	prompt := p.JoinPositional()
	if prompt == "" {
		return ErrMissingArgument("prompt", `forgechat ask "explain io.Pipe"`)
	}

	if path, ok := p.Flag("file"); ok {
		block, err := readFileForContext(path)
		if err != nil {
			return err
		}
		prompt = block + "\n\n" + prompt
	}

	msg := model.NewUserMessage(prompt)
	if path, ok := p.Flag("image"); ok {
		dataURL, err := readImageAsDataURL(path)
		if err != nil {
			return err
		}
		msg = model.NewUserMessageWithImages(prompt, dataURL)
	}

	w, err := OpenWorkbench(args, WorkbenchOptions{})
	if err != nil {
		return err
	}
	defer w.Close()

	req, err := w.BuildRequest([]*model.Message{msg}, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if IsStdoutTTY() && w.Config.UI.Markdown {
		var buf strings.Builder
		if err := w.Client.Stream(ctx, w.Provider, req, func(delta string) {
			buf.WriteString(delta)
		}); err != nil {
			return err
		}
		fmt.Println(renderMarkdown(buf.String()))
		return nil
	}

	var last string
	if err := w.Client.Stream(ctx, w.Provider, req, func(delta string) {
		fmt.Print(delta)
		last = delta
	}); err != nil {
		return err
	}
	if !strings.HasSuffix(last, "\n") {
		fmt.Println()
	}
	return nil
}

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	mdOnce     sync.Once
	mdRenderer *glamour.TermRenderer
)

// renderMarkdown renders assistant prose through glamour, falling back to
// the raw text when the renderer cannot be built.
func renderMarkdown(text string) string {
	mdOnce.Do(func() {
		width := GetTerminalWidth()
		if width > 100 {
			width = 100
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithStylePath(styles.GlamourStyle(config.Global().UI.Theme)),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			mdRenderer = r
		}
	})
	if mdRenderer == nil {
		return text
	}
	out, err := mdRenderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// readFileForContext reads a text file and frames it for prompt context.
func readFileForContext(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading context file: %w", err)
	}
	if info.Size() > maxAskFileSize {
		return "", fmt.Errorf("context file %s is %d bytes; the limit is %d", path, info.Size(), maxAskFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading context file: %w", err)
	}
	return fmt.Sprintf("--- File: %s ---\n%s\n--- End file ---", filepath.Base(path), data), nil
}

// imageMimeTypes maps attachment extensions to their media type.
var imageMimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// readImageAsDataURL reads an image file into the data URL form the message
// model carries for inline image parts.
func readImageAsDataURL(path string) (string, error) {
	mime, ok := imageMimeTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("unsupported image type %q (want png, jpg, gif, or webp)", filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if info.Size() > maxImageFileSize {
		return "", fmt.Errorf("image %s is %d bytes; the limit is %d", path, info.Size(), maxImageFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
