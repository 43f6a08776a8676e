package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Accept errors other than a closed listener are retried after a delay that
// doubles from minAcceptDelay up to maxAcceptDelay.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// HandleConnectionCallback serves one accepted master connection.
type HandleConnectionCallback func(ctx context.Context, conn net.Conn)

type Handler struct {
	url      string
	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	stopped bool
}

// NewHandler creates a handler for a url like tcp://localhost:5002.
func NewHandler(url string) (*Handler, error) {
	splitURL := strings.SplitN(url, "://", 2)
	if len(splitURL) == 2 && splitURL[0] == "tcp" && splitURL[1] != "" {
		return &Handler{url: splitURL[1], conns: make(map[net.Conn]struct{})}, nil
	}
	return nil, fmt.Errorf("invalid url format %s", url)
}

func (h *Handler) Start(ctx context.Context, cb HandleConnectionCallback) (err error) {
	h.listener, err = net.Listen("tcp", h.url)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener: %w", err)
	}
	h.wg.Add(1)
	go h.acceptClients(ctx, cb)
	slog.Info("TCP listener started", "url", h.listener.Addr().String())
	return nil
}

func (h *Handler) Stop() error {
	if h.listener == nil {
		return nil
	}
	slog.Info("Stopping TCP listener", "url", h.url)
	err := h.listener.Close()

	h.mu.Lock()
	h.stopped = true
	for conn := range h.conns {
		conn.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the bound listen address, or nil before Start.
func (h *Handler) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *Handler) Description() string {
	if a := h.Addr(); a != nil {
		return "tcp://" + a.String()
	}
	return "tcp://" + h.url
}

func (h *Handler) acceptClients(ctx context.Context, cb HandleConnectionCallback) {
	defer h.wg.Done()

	// unblock Accept on cancellation
	stop := context.AfterFunc(ctx, func() { h.listener.Close() })
	defer stop()

	var delay time.Duration
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			delay = max(minAcceptDelay, min(2*delay, maxAcceptDelay))
			slog.Error("accept failed", "error", err, "retry in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		slog.Info("client connected", "remote addr", conn.RemoteAddr())
		h.serve(ctx, conn, cb)
	}
}

// serve runs cb for conn in its own goroutine. Stop closes conn and waits
// for cb to return.
func (h *Handler) serve(ctx context.Context, conn net.Conn, cb HandleConnectionCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		conn.Close()
		return
	}
	h.conns[conn] = struct{}{}
	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		cb(ctx, conn)
	}()
}
