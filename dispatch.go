package screenstream

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"
)

// run is the dispatcher loop: accept with a deadline so the stop signal is
// rechecked every poll interval, then hand each connection to its own
// goroutine. Accept errors are never fatal for the session.
func (s *session) run(ln *net.TCPListener) {
	defer close(s.done)
	defer ln.Close()

	for {
		if s.stop.Load() {
			s.logger.Println("Stop signal received, shutting down server")
			return
		}

		ln.SetDeadline(time.Now().Add(s.pollInterval))
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Printf("Connection error: %v", err)
			continue
		}

		go func() {
			if err := s.handleConnection(conn); err != nil {
				s.logger.Printf("Client %s error: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

// handleConnection sniffs the opening bytes of a freshly accepted
// connection and routes it to the viewer-page responder or the frame pump.
// Errors here end only this connection.
func (s *session) handleConnection(conn net.Conn) error {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.sniffTimeout))
	br := bufio.NewReaderSize(conn, sniffLimit)

	proto, head, err := sniffProtocol(br)
	if err != nil {
		return err
	}
	conn.SetReadDeadline(time.Time{})

	if line, _, found := strings.Cut(string(head), "\r\n"); found {
		s.logger.Printf("Request: %s", line)
	}

	if proto == protocolWebSocket {
		s.logger.Printf("WebSocket connection detected from %s", conn.RemoteAddr())
		return s.streamFrames(conn, br)
	}
	s.logger.Printf("HTTP connection detected from %s", conn.RemoteAddr())
	return writeViewerPage(conn)
}
