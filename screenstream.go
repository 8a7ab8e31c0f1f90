// Package screenstream implements a hybrid HTTP/WebSocket screen-streaming
// server. A single TCP listener serves both a static HTML viewer page and a
// live JPEG video feed of a chosen display over the same port; each accepted
// connection is classified by sniffing its opening bytes and routed to the
// matching handler.
package screenstream

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/screenstream/capture"
)

var (
	// ErrEmptyRequest is returned when a connection produces no bytes
	// within the sniff timeout.
	ErrEmptyRequest = errors.New("empty request")

	// ErrDisplayOutOfRange is returned when the session's display index
	// exceeds the current display count. It ends the one connection that
	// observed it, never the session.
	ErrDisplayOutOfRange = errors.New("display index out of range")

	// ErrNoLocalAddress is returned by Start when no usable local IPv4
	// address can be found.
	ErrNoLocalAddress = errors.New("no usable local address")
)

// StreamInfo describes a started session: the bound port and the local
// network address a viewer on the LAN can reach it at.
type StreamInfo struct {
	Port      uint16
	LocalAddr string
}

// URL returns the viewer page address.
func (i StreamInfo) URL() string {
	return fmt.Sprintf("http://%s:%d/", i.LocalAddr, i.Port)
}

// Manager is the start/stop control surface for streaming. It tracks at
// most one active session; starting while one is active stops the previous
// one first. All methods are safe for concurrent use.
type Manager struct {
	cfg Config

	mu     sync.Mutex
	active *session
}

// New creates a Manager with the given configuration, filling in defaults
// for anything unset.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults()}
}

// Start binds a listener on 0.0.0.0:port and begins serving viewer pages
// and frame streams for the given display. Port 0 binds an ephemeral port.
// A bind failure or address-resolution failure is returned to the caller
// and no session is recorded.
func (m *Manager) Start(port uint16, displayIndex int) (StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	localAddr, err := localIPv4()
	if err != nil {
		return StreamInfo{}, err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return StreamInfo{}, fmt.Errorf("bind port %d: %w", port, err)
	}

	tcpListener, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return StreamInfo{}, fmt.Errorf("unexpected listener type %T", ln)
	}
	boundPort := uint16(tcpListener.Addr().(*net.TCPAddr).Port)

	sess := &session{
		port:          boundPort,
		displayIndex:  displayIndex,
		quality:       m.cfg.Quality,
		frameInterval: m.cfg.FrameInterval,
		pollInterval:  m.cfg.PollInterval,
		sniffTimeout:  m.cfg.SniffTimeout,
		source:        m.cfg.Source,
		logger:        m.cfg.Logger,
		done:          make(chan struct{}),
	}
	m.active = sess

	m.cfg.Logger.Printf("Hybrid HTTP/WebSocket server listening on 0.0.0.0:%d (display %d)", boundPort, displayIndex)
	go sess.run(tcpListener)

	return StreamInfo{Port: boundPort, LocalAddr: localAddr}, nil
}

// Stop signals the active session to shut down and returns immediately.
// Listener teardown and in-flight connection closure happen asynchronously,
// bounded by the accept-poll interval and the per-frame interval. Stopping
// when nothing is running is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.active == nil {
		return
	}
	m.active.stop.Store(true)
	m.cfg.Logger.Printf("Stop requested for session on port %d", m.active.port)
	m.active = nil
}

// session is one instance of "currently streaming": a bound port, a display
// selection, and the background work it owns. The stop flag is the only
// state shared between the accept loop and the connection handlers.
type session struct {
	port          uint16
	displayIndex  int
	quality       int
	frameInterval time.Duration
	pollInterval  time.Duration
	sniffTimeout  time.Duration
	source        capture.Source
	logger        Logger

	stop atomic.Bool
	done chan struct{}
}
