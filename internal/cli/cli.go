// Package cli hand-rolls the daemon's flag/command parsing, following the
// teacher's own small parser rather than a third-party flag library: no
// command-line framework appears anywhere in the example corpus.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandConfirm Command = "confirm"
	CommandToggle  Command = "toggle"
	CommandStatus  Command = "status"
	CommandConfig  Command = "config"
	CommandDaemon  Command = "daemon"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandOverlay Command = "overlay"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandStart:   {},
	CommandStop:    {},
	CommandConfirm: {},
	CommandToggle:  {},
	CommandStatus:  {},
	CommandConfig:  {},
	CommandDaemon:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandOverlay: {},
	CommandVersion: {},
	CommandHelp:    {},
}

// Parsed is the decoded command-line invocation.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
}

// Parse decodes args into a Parsed invocation or returns a misuse error.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

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

	return parsed, nil
}

// HelpText renders the usage block printed for `help`/`-h` and on misuse.
func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  daemon    Run the dictation daemon in the foreground
  start     Arm a new dictation session (idle -> prelistening)
  stop      Cancel the active session without emitting text
  confirm   End the active session and emit the recognized text
  toggle    start if idle, confirm otherwise
  status    Print the daemon's current session state
  config    Open the configuration TUI (external tool, out of core scope)
  devices   List available input devices
  doctor    Run configuration and environment readiness checks
  overlay   Run the layer-shell overlay renderer in the foreground
  version   Print version information
  help      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/dictd/config.toml)
  -h, --help      Show help
  --version       Show version

Exit codes: 0 success, 1 error, 2 misuse, 64 reload requested.
`, binaryName)
}
