package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Commands understood by the daemon.
const (
	CommandStatus   = "status"
	CommandStart    = "start"
	CommandStop     = "stop"
	CommandToggle   = "toggle"
	CommandKeyDown  = "keydown"
	CommandKeyUp    = "keyup"
	CommandEnable   = "enable"
	CommandDisable  = "disable"
	CommandShutdown = "shutdown"
)

type Request struct {
	Command string `json:"command"`
	Key     string `json:"key,omitempty"`
	Repeat  bool   `json:"repeat,omitempty"`
}

// Validate rejects unknown commands and key events without a key.
func (r Request) Validate() error {
	switch r.Command {
	case CommandStatus, CommandStart, CommandStop, CommandToggle,
		CommandEnable, CommandDisable, CommandShutdown:
		return nil
	case CommandKeyDown, CommandKeyUp:
		if strings.TrimSpace(r.Key) == "" {
			return fmt.Errorf("%s requires a key", r.Command)
		}
		return nil
	case "":
		return fmt.Errorf("command is required")
	default:
		return fmt.Errorf("unknown command %q", r.Command)
	}
}

type Response struct {
	OK       bool   `json:"ok"`
	State    string `json:"state,omitempty"`
	Pending  bool   `json:"pending,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
	Interim  string `json:"interim,omitempty"`
	Final    string `json:"final,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// maxMessageBytes bounds one newline-delimited JSON message.
const maxMessageBytes = 64 << 10

// writeMessage encodes v as a single JSON line.
func writeMessage(w io.Writer, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return err
}

// readMessage reads one JSON line into v. what names the message in errors.
func readMessage(r *bufio.Reader, what string, v any) error {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return fmt.Errorf("read %s: %w", what, err)
		}
		line = append(line, chunk...)
		if len(line) > maxMessageBytes {
			return fmt.Errorf("read %s: message exceeds %d bytes", what, maxMessageBytes)
		}
		if !isPrefix {
			break
		}
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}
