package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantMsg  string
	}{
		{name: "tcp until cancelled", args: []string{"--listen", "tcp://127.0.0.1:0", "--lock", "0x8000"}, wantCode: 0},
		{name: "unsupported scheme", args: []string{"-l", "udp://127.0.0.1:0"}, wantCode: 1, wantMsg: "unsupported listen url"},
		{name: "missing address", args: []string{"-l", "tcp://"}, wantCode: 1, wantMsg: "invalid url format"},
		{name: "bad lock register", args: []string{"--lock", "0x1FFFF"}, wantCode: 1, wantMsg: "invalid register"},
		{name: "unknown flag", args: []string{"--bogus"}, wantCode: 1, wantMsg: "unknown flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var out bytes.Buffer
			if code := run(ctx, tt.args, &out); code != tt.wantCode {
				t.Fatalf("expected exit %d, got %d: %s", tt.wantCode, code, out.String())
			}
			if !strings.Contains(out.String(), tt.wantMsg) {
				t.Fatalf("expected %q, got %q", tt.wantMsg, out.String())
			}
		})
	}
}
