// Package cli parses murmur's argv and renders help text.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandServe    Command = "serve"
	CommandStart    Command = "start"
	CommandStop     Command = "stop"
	CommandToggle   Command = "toggle"
	CommandPress    Command = "press"
	CommandRelease  Command = "release"
	CommandStatus   Command = "status"
	CommandEnable   Command = "enable"
	CommandDisable  Command = "disable"
	CommandShutdown Command = "shutdown"
	CommandDevices  Command = "devices"
	CommandDoctor   Command = "doctor"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:    {},
	CommandStart:    {},
	CommandStop:     {},
	CommandToggle:   {},
	CommandPress:    {},
	CommandRelease:  {},
	CommandStatus:   {},
	CommandEnable:   {},
	CommandDisable:  {},
	CommandShutdown: {},
	CommandDevices:  {},
	CommandDoctor:   {},
	CommandVersion:  {},
	CommandHelp:     {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	// Key overrides trigger.key for press/release.
	Key string
	// Repeat marks a press as OS auto-repeat.
	Repeat   bool
	LogLevel string
	Verbose  bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	value := func(i *int, flag string) (string, error) {
		*i++
		if *i >= len(args) || strings.TrimSpace(args[*i]) == "" {
			return "", fmt.Errorf("%s requires a value", flag)
		}
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--key":
			key, err := value(&i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.Key = key
		case "--log-level":
			level, err := value(&i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.LogLevel = level
		case "--repeat":
			parsed.Repeat = true
		case "-v", "--verbose":
			parsed.Verbose = true
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if i != len(args)-1 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
		}
	}

	if parsed.Repeat && parsed.Command != CommandPress {
		return Parsed{}, errors.New("--repeat only applies to press")
	}
	if parsed.Key != "" && parsed.Command != CommandPress && parsed.Command != CommandRelease {
		return Parsed{}, errors.New("--key only applies to press and release")
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags] <command>

Commands:
  serve     Run the dictation daemon in the foreground
  start     Start listening
  stop      Stop listening and commit the transcript
  toggle    Start listening, or stop when already listening
  press     Send a trigger key press (bind to key down)
  release   Send a trigger key release (bind to key up)
  status    Print current state
  enable    Re-enable dictation
  disable   Disable dictation and stop any active attempt
  shutdown  Stop the daemon
  devices   List available input devices
  doctor    Run configuration and environment checks
  version   Print version information
  help      Show this help

Flags:
  --config PATH       Config file path (default: $XDG_CONFIG_HOME/murmur/config.yaml)
  --key KEY           Key code for press/release (default: trigger.key)
  --repeat            Mark a press as keyboard auto-repeat
  --log-level LEVEL   serve log level: debug, info, warn, error
  -v, --verbose       serve also logs to stderr
  -h, --help          Show help
  --version           Show version
`, binaryName)
}
