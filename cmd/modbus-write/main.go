package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/frederickproctor/gomotion"
	"github.com/frederickproctor/gomotion/client"
	"github.com/frederickproctor/gomotion/config"
	"github.com/frederickproctor/gomotion/console"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func printHelp(out io.Writer, defaults config.Config) {
	fmt.Fprintf(out, "-h, --host <addr>    : connect to Go Motion on address <addr>, default %s\n", defaults.Host)
	fmt.Fprintf(out, "-p, --port <port>    : connect to Go Motion on port <port>, default %d\n", defaults.Port)
	fmt.Fprintln(out, "-v, --value <value>  : write <value> to the output")
	fmt.Fprintf(out, "-u, --unit <id>      : address unit <id>, default %d\n", defaults.UnitID)
	fmt.Fprintf(out, "-t, --timeout <dur>  : connect and response timeout, default %s\n", defaults.Timeout())
	fmt.Fprintln(out, "-c, --config <file>  : read settings from a TOML or YAML profile")
	fmt.Fprintln(out, "-d, --debug          : log debug output and protocol frames")
	fmt.Fprintln(out, "-?, --help           : print this help message")
}

// run performs one connect, encode and write cycle and returns the process
// exit code. A failed write is reported but still exits 0.
func run(args []string, stdout io.Writer) int {
	defaults := config.Default()

	fs := pflag.NewFlagSet("modbus-write", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	host := fs.StringP("host", "h", defaults.Host, "target host")
	port := fs.StringP("port", "p", strconv.Itoa(defaults.Port), "target port")
	value := fs.StringP("value", "v", "0", "value to write")
	unit := fs.Uint8P("unit", "u", defaults.UnitID, "unit id")
	timeout := fs.DurationP("timeout", "t", defaults.Timeout(), "timeout")
	profile := fs.StringP("config", "c", "", "profile file")
	debug := fs.BoolP("debug", "d", false, "debug output")
	help := fs.BoolP("help", "?", false, "print help")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stdout, "modbus: %v\n", err)
		return 1
	}
	if *help {
		printHelp(stdout, defaults)
		return 0
	}

	cfg := defaults
	if *profile != "" {
		loaded, err := config.Load(*profile)
		if err != nil {
			fmt.Fprintf(stdout, "modbus: %v\n", err)
			return 1
		}
		cfg = *loaded
	}

	if fs.Changed("host") {
		cfg.Host = *host
	}
	if fs.Changed("port") {
		p, err := strconv.Atoi(strings.TrimSpace(*port))
		if err != nil {
			printHelp(stdout, defaults)
			return 1
		}
		cfg.Port = p
	}
	if fs.Changed("value") {
		v, err := strconv.ParseFloat(strings.TrimSpace(*value), 64)
		if err != nil {
			printHelp(stdout, defaults)
			return 1
		}
		cfg.Value = v
	}
	if fs.Changed("unit") {
		cfg.UnitID = *unit
	}
	if fs.Changed("timeout") {
		cfg.TimeoutMs = int(*timeout / time.Millisecond)
	}
	if fs.Changed("debug") {
		cfg.Debug = *debug
	}

	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	// any integer is accepted as a port; one no socket can use fails as a
	// connect failure
	if cfg.Port < 1 || cfg.Port > 65535 {
		slog.Debug("port out of range", "port", cfg.Port)
		fmt.Fprintf(stdout, "modbus: can't connect to %s on port %d\n", cfg.Host, cfg.Port)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stdout, "modbus: %v\n", err)
		return 1
	}
	register, err := cfg.RegisterAddress()
	if err != nil {
		fmt.Fprintf(stdout, "modbus: %v\n", err)
		return 1
	}

	c, err := client.New(cfg)
	if err != nil {
		slog.Debug("client creation failed", "error", err)
		fmt.Fprintln(stdout, "modbus: can't create client")
		return 1
	}
	if err := c.Connect(); err != nil {
		slog.Debug("connect failed", "error", err)
		fmt.Fprintf(stdout, "modbus: can't connect to %s on port %d\n", cfg.Host, cfg.Port)
		return 1
	}
	defer c.Close()

	protocolPort := console.NewProtocolAdapter()
	protocolPort.SetWriter(stdout)
	protocolPort.SetTimestamps(false)
	if !cfg.Debug {
		protocolPort.Mute()
	}

	output := gomotion.NewAnalogOutput(c, register, protocolPort)
	scaled, err := output.Write(cfg.Value)
	if err != nil {
		slog.Debug("write failed", "target", c.Description(), "error", err)
		fmt.Fprintf(stdout, "modbus: can't write %d\n", scaled)
	}
	return 0
}
