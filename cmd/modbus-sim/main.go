package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/frederickproctor/gomotion/console"
	"github.com/frederickproctor/gomotion/pkg/modbus"
	"github.com/frederickproctor/gomotion/rtu"
	"github.com/frederickproctor/gomotion/sim"
	"github.com/frederickproctor/gomotion/tcp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout))
}

type simulator interface {
	Stop() error
	Status() string
}

// rtuSimulator pairs a serial handler with the device it serves.
type rtuSimulator struct {
	handler *rtu.Handler
	device  *sim.Device
}

func (s rtuSimulator) Stop() error {
	return s.handler.Stop()
}

func (s rtuSimulator) Status() string {
	return fmt.Sprintf("Port: %s\n%s", s.handler.Description(), s.device.Status())
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	fs := pflag.NewFlagSet("modbus-sim", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	listen := fs.StringP("listen", "l", "tcp://localhost:5002", "listen url, tcp://host:port or rtu:///dev/tty...")
	debug := fs.BoolP("debug", "d", false, "set log level to debug")
	var locks modbus.AddressList
	fs.Var(&locks, "lock", "reject writes to this register, e.g. 0x8000 (repeatable)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stdout, "modbus-sim: %v\n", err)
		return 1
	}

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	protocolPort := console.NewProtocolAdapter()
	protocolPort.SetWriter(stdout)
	device := sim.NewDevice(protocolPort)
	for _, addr := range locks {
		device.Lock(addr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := start(ctx, *listen, device, protocolPort)
	if err != nil {
		fmt.Fprintf(stdout, "modbus-sim: %v\n", err)
		return 1
	}
	defer s.Stop()
	slog.Info("simulator started", "listen", *listen)

	if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(f.Fd())) {
		go func() {
			if err := console.NewKeyboardAdapter(s, protocolPort).Start(cancel); err != nil {
				slog.Error("console stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	return 0
}

func start(ctx context.Context, listen string, device *sim.Device, protocolPort *console.ProtocolAdapter) (simulator, error) {
	switch {
	case strings.HasPrefix(listen, "tcp://"):
		handler, err := tcp.NewHandler(listen)
		if err != nil {
			return nil, err
		}
		bus := sim.NewBus(handler, device, protocolPort)
		if err := bus.Start(ctx); err != nil {
			return nil, err
		}
		return bus, nil
	case strings.HasPrefix(listen, "rtu://"):
		handler, err := rtu.NewHandler(listen, protocolPort)
		if err != nil {
			return nil, err
		}
		if err := handler.Start(ctx, device.Process); err != nil {
			return nil, err
		}
		return rtuSimulator{handler: handler, device: device}, nil
	}
	return nil, fmt.Errorf("unsupported listen url %q", listen)
}
