// Package listener accepts RTMP connections on a TCP socket and hands
// each one off to its own internal/conn goroutine, enforcing a
// configurable cap on concurrently open connections.
package listener

import (
	"context"
	"errors"
	"log"
	"net"
	"sync/atomic"

	"chunkcast/internal/command"
	"chunkcast/internal/conn"
	"chunkcast/internal/handler"
	"chunkcast/internal/metrics"
	"chunkcast/internal/registry"
	"chunkcast/internal/session"
)

// Config holds the listener's own knobs plus the per-connection Config
// threaded through to every accepted conn.Conn.
type Config struct {
	BindAddr       string
	MaxConnections int
	TCPNoDelay     bool
	Conn           conn.Config
}

// Listener owns the TCP socket and the connection-id counter.
type Listener struct {
	cfg        Config
	dispatcher *command.Dispatcher
	reg        *registry.Registry
	h          handler.Handler
	m          *metrics.Metrics
	tr         *session.Tracker

	nextID  atomic.Uint64
	active  atomic.Int64
}

// New creates a Listener; call Serve to start accepting. tr, if non-nil,
// is handed to every accepted conn.Conn so the admin API can list active
// sessions.
func New(cfg Config, disp *command.Dispatcher, reg *registry.Registry, h handler.Handler, m *metrics.Metrics, tr *session.Tracker) *Listener {
	return &Listener{cfg: cfg, dispatcher: disp, reg: reg, h: h, m: m, tr: tr}
}

// Serve listens on cfg.BindAddr and accepts connections until ctx is
// cancelled, then returns nil. It returns an error only if binding fails;
// other accept errors are logged and accepting continues. Each accepted socket runs
// its conn.Conn.Serve in its own goroutine.
func (l *Listener) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", l.cfg.BindAddr)
	if err != nil {
		return err
	}
	log.Printf("rtmp listener: listening on %s", l.cfg.BindAddr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			log.Printf("rtmp listener: accept error: %v", err)
			continue
		}

		if l.cfg.MaxConnections > 0 && l.active.Load() >= int64(l.cfg.MaxConnections) {
			log.Printf("rtmp listener: rejecting %s, at connection cap (%d)", raw.RemoteAddr(), l.cfg.MaxConnections)
			if l.m != nil {
				l.m.RecordConnectionRejected("max_connections")
			}
			raw.Close()
			continue
		}

		if tcpConn, ok := raw.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(l.cfg.TCPNoDelay)
		}

		id := l.nextID.Add(1)
		l.active.Add(1)
		if l.m != nil {
			l.m.RecordConnectionAccepted()
		}

		c := conn.New(id, raw, l.cfg.Conn, l.dispatcher, l.reg, l.h, l.m, l.tr)
		go func() {
			defer l.active.Add(-1)
			if err := c.Serve(); err != nil {
				log.Printf("rtmp conn %d (%s): %v", id, raw.RemoteAddr(), err)
			}
		}()
	}
}

// ActiveConnections reports the current number of connections this
// listener has accepted and not yet finished serving.
func (l *Listener) ActiveConnections() int64 { return l.active.Load() }
