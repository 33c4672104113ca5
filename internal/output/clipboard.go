// Package output applies transcript commit side effects (clipboard and paste).
package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/config"
	"github.com/rbright/murmur/internal/transcript"
	"github.com/rbright/murmur/internal/voice"
)

// ErrEmptyTranscript is returned when formatting leaves nothing to commit.
var ErrEmptyTranscript = errors.New("transcript is empty")

var _ voice.Committer = (*Committer)(nil)

// Committer formats a delivered transcript, sets the clipboard, and
// optionally pastes into the focused window.
type Committer struct {
	config config.OutputConfig
	format transcript.Options
	logger *slog.Logger
}

// NewCommitter constructs a transcript committer from runtime config.
func NewCommitter(cfg config.Config, logger *slog.Logger) *Committer {
	return &Committer{
		config: cfg.Output,
		format: transcript.Options{
			CapitalizeSentences: cfg.Transcript.CapitalizeSentences,
			TrailingSpace:       cfg.Transcript.TrailingSpace,
		},
		logger: logger,
	}
}

const (
	clipboardTimeout = 2 * time.Second
	pasteCmdTimeout  = 2 * time.Second
	pasteKeyTimeout  = 1200 * time.Millisecond
)

// Commit writes the formatted transcript to the clipboard. Paste failures are
// logged but never fail the commit: the text is already on the clipboard.
func (c *Committer) Commit(ctx context.Context, text string) error {
	text = transcript.Format(text, c.format)
	if text == "" {
		return ErrEmptyTranscript
	}

	clipboardCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	err := runCommandWithInput(clipboardCtx, c.config.ClipboardCmd.Argv, text)
	cancel()
	if err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}

	if c.config.Paste.Enable {
		if err := c.paste(ctx); err != nil && c.logger != nil {
			c.logger.Warn("paste dispatch failed; clipboard remains set", "error", err.Error())
		}
	}
	return nil
}

// paste runs paste_cmd when configured, else sends the shortcut to the
// focused window.
func (c *Committer) paste(ctx context.Context) error {
	if argv := c.config.PasteCmd.Argv; len(argv) > 0 {
		pasteCtx, cancel := context.WithTimeout(ctx, pasteCmdTimeout)
		defer cancel()
		return runCommandWithInput(pasteCtx, argv, "")
	}
	pasteCtx, cancel := context.WithTimeout(ctx, pasteKeyTimeout)
	defer cancel()
	return defaultPaste(pasteCtx, c.config.Paste.Shortcut)
}

// runCommandWithInput executes argv with input on stdin. Stderr is folded
// into the returned error.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("run %s: %w (%s)", argv[0], err, msg)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
