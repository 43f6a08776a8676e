package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

type ProtocolAdapter struct {
	mu         sync.Mutex
	lastLine   string
	muted      bool
	timestamps bool
	writer     io.Writer
}

func NewProtocolAdapter() *ProtocolAdapter {
	return &ProtocolAdapter{
		timestamps: true,
		writer:     os.Stdout, // Default to stdout
	}
}

func (p *ProtocolAdapter) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

// SetTimestamps switches the time prefix of Info lines on or off.
func (p *ProtocolAdapter) SetTimestamps(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timestamps = on
}

func (p *ProtocolAdapter) Info(msg string) {
	p.mu.Lock()
	timestamps := p.timestamps
	p.mu.Unlock()

	if timestamps {
		msg = fmt.Sprintf("%s %s", time.Now().Format(time.DateTime), msg)
	}
	p.print(msg, false)
}

func (p *ProtocolAdapter) Separator() {
	p.mu.Lock()
	w := p.writer
	p.mu.Unlock()

	width := 80
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			width = cols
		}
	}
	p.print(strings.Repeat("─", width), false)
}

func (p *ProtocolAdapter) Println(msg string) {
	p.print(msg, true)
}

func (p *ProtocolAdapter) Mute() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = true
}

func (p *ProtocolAdapter) Unmute() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = false
}

func (p *ProtocolAdapter) print(s string, force bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !force && p.muted {
		return
	}

	if p.lastLine == s {
		return
	}
	fmt.Fprintln(p.writer, s)
	p.lastLine = s
}
