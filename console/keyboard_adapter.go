package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/frederickproctor/gomotion"
)

// KeyboardAdapter is the interactive console of the simulator.
type KeyboardAdapter struct {
	simulator    simulatorPort
	protocolPort gomotion.ProtocolPort
	config       *readline.Config
}

func NewKeyboardAdapter(simulator simulatorPort, protocolPort gomotion.ProtocolPort) *KeyboardAdapter {
	return &KeyboardAdapter{
		simulator:    simulator,
		protocolPort: protocolPort,
		config:       &readline.Config{Prompt: "> "},
	}
}

// SetIO replaces the terminal with the given streams.
func (a *KeyboardAdapter) SetIO(in io.ReadCloser, out io.Writer) {
	a.config.Stdin = in
	a.config.Stdout = out
	a.config.FuncIsTerminal = func() bool { return false }
}

// Start reads commands until quit, end of input or interrupt and then calls
// cancel.
func (a *KeyboardAdapter) Start(cancel context.CancelFunc) error {
	defer cancel()

	rl, err := readline.NewEx(a.config)
	if err != nil {
		return fmt.Errorf("failed to open console: %w", err)
	}
	defer rl.Close()

	out := rl.Stdout()
	fmt.Fprintln(out, "Enter 'h' followed by <enter> for help...")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			fmt.Fprintln(out, "Terminating simulator...")
			return nil
		}
		if err != nil {
			return err
		}

		switch strings.TrimSpace(line) {
		case "":
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Terminating simulator...")
			return nil
		case "status", "s":
			fmt.Fprintln(out, a.simulator.Status())
		case "mute", "m":
			a.protocolPort.Mute()
			a.protocolPort.Println("protocol output muted")
		case "unmute", "u":
			a.protocolPort.Unmute()
			a.protocolPort.Println("protocol output unmuted")
		case "help", "h":
			fmt.Fprintln(out, "Commands:")
			fmt.Fprintln(out, "  quit/exit/q - Quit simulator")
			fmt.Fprintln(out, "  status/s    - Show simulator status")
			fmt.Fprintln(out, "  mute/m      - Hide protocol output")
			fmt.Fprintln(out, "  unmute/u    - Show protocol output")
			fmt.Fprintln(out, "  help        - Show help")
		default:
			fmt.Fprintf(out, "Unknown command: %s (use 'h' for help)\n", line)
		}
	}
}

type simulatorPort interface {
	Status() string
}
