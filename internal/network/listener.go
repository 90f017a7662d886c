package network

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc serves one accepted connection. It returns when the session
// ends; the listener closes the connection afterwards.
type HandlerFunc func(ctx context.Context, conn *Connection)

// Listener accepts game clients and hands each to a handler goroutine.
type Listener struct {
	addr     string
	handler  HandlerFunc
	registry *ConnectionRegistry

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewListener creates a listener for addr ("host:port").
func NewListener(addr string, registry *ConnectionRegistry, handler HandlerFunc) *Listener {
	if registry == nil {
		registry = NewConnectionRegistry()
	}
	return &Listener{
		addr:     addr,
		handler:  handler,
		registry: registry,
	}
}

// Listen binds the socket. SO_REUSEADDR allows immediate rebinding after a
// restart.
func (l *Listener) Listen(ctx context.Context) error {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to start game listener on %s: %w", l.addr, err)
	}

	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("game listener started")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then closes the client
// connections and waits for their handlers to return.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.listener
	l.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("listener not bound")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("game listener stopping")
				l.registry.CloseAll()
				l.wg.Wait()
				return nil
			default:
				log.Error().Err(err).Msg("failed to accept connection")
				continue
			}
		}

		if tcp, ok := raw.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}

		log.Debug().Str("remote", raw.RemoteAddr().String()).Msg("new client connection")

		conn := NewConnection(raw)
		l.registry.Register(conn)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.registry.Unregister(conn)
			defer conn.Close()
			l.handler(ctx, conn)
		}()
	}
}

// Start binds and serves.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.Listen(ctx); err != nil {
		return err
	}
	return l.Serve(ctx)
}

// Registry returns the registry of open connections.
func (l *Listener) Registry() *ConnectionRegistry {
	return l.registry
}
