// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/provider"
	"github.com/jeranaias/forgechat/internal/security"
)

// HandleConfig handles `forgechat config get|set|set-key|path`.
func HandleConfig(args Args) error {
	p := NewArgParser(args.Raw)

	switch op := p.Positional(0); op {
	case "get":
		return configGet(p.Positional(1))
	case "set":
		return configSet(p.Positional(1), p.Positional(2))
	case "set-key":
		return configSetKey(args, p.Positional(1))
	case "path":
		return configPath(args)
	case "":
		return ErrMissingArgument("operation", "get | set | set-key | path")
	default:
		return &UsageError{Message: "unknown config operation " + op, Hint: "get | set | set-key | path"}
	}
}

// configGet prints one key, or every key when name is empty.
func configGet(key string) error {
	cfg := config.Global()

	if key == "" {
		for _, k := range config.GetAllKeys() {
			v, err := cfg.Get(k)
			if err != nil {
				continue
			}
			fmt.Printf("%-24s %s\n", k, renderConfigValue(k, v))
		}
		return nil
	}

	v, err := cfg.Get(key)
	if err != nil {
		return &NotFoundError{Kind: "config key", ID: key}
	}
	fmt.Println(renderConfigValue(key, v))
	return nil
}

// renderConfigValue formats a config value for display.
// SECURITY: API keys never print; only whether one is stored and how.
func renderConfigValue(key string, v interface{}) string {
	if strings.HasSuffix(key, "api_key") {
		s, _ := v.(string)
		switch {
		case s == "":
			return DimStyle.Render("(not set)")
		case security.IsEncrypted(s):
			return SuccessStyle.Render("(set, sealed)")
		default:
			return WarningStyle.Render("(set, plaintext)")
		}
	}
	return fmt.Sprintf("%v", v)
}

// configSet writes one key and persists the config.
func configSet(key, value string) error {
	if key == "" || value == "" {
		return ErrMissingArgument("key and value", "forgechat config set ui.theme light")
	}
	if strings.HasSuffix(key, "api_key") {
		return &UsageError{
			Message: "api keys are not set in plaintext",
			Hint:    "use `forgechat config set-key <provider>`",
		}
	}

	cfg := config.Global().Clone()
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	config.SetGlobal(cfg)

	fmt.Println(SuccessStyle.Render("saved"), RenderLabel(key, value))
	return nil
}

// configSetKey prompts for a provider API key and stores it keyring-sealed.
// SECURITY: the prompt never echoes and the plaintext key is never logged
// or printed back.
func configSetKey(args Args, name string) error {
	if name == "" {
		return ErrMissingArgument("provider", "forgechat config set-key anthropic")
	}
	p := provider.Provider(name)
	if !p.Known() {
		return &UsageError{
			Message: fmt.Sprintf("unknown provider %q", name),
			Hint:    "use anthropic, google, or local",
		}
	}

	key, err := readSecret(fmt.Sprintf("%s API key: ", p))
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty key; nothing stored")
	}

	stored := key
	kr, err := security.Open()
	if err != nil {
		if !args.Quiet {
			fmt.Fprintln(os.Stderr, WarningStyle.Render("warning:"), "keyring unavailable; storing plaintext:", err)
		}
	} else {
		sealed, err := kr.Encrypt(key)
		if err != nil {
			return fmt.Errorf("sealing key: %w", err)
		}
		stored = sealed
	}

	cfg := config.Global().Clone()
	if err := cfg.SetProviderKey(p, stored); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	config.SetGlobal(cfg)

	if security.IsEncrypted(stored) {
		fmt.Println(SuccessStyle.Render("stored"), DimStyle.Render("(keyring-sealed)"))
	} else {
		fmt.Println(SuccessStyle.Render("stored"), WarningStyle.Render("(plaintext)"))
	}
	return nil
}

// configPath prints the config file location.
func configPath(args Args) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	fmt.Println(path)
	if !args.Quiet {
		if dir, err := config.Global().StateDir(); err == nil {
			fmt.Println(DimStyle.Render("state: " + dir))
		}
	}
	return nil
}

// readSecret reads a line without echo on a terminal. Piped stdin reads one
// plain line so scripts can inject keys.
func readSecret(prompt string) (string, error) {
	if IsStdinTTY() {
		fmt.Print(prompt)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
