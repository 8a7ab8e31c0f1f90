package screenstream

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coder/screenstream/capture"
)

// maxEncodeFailures bounds consecutive per-frame encode errors before the
// connection is ended, so a persistent encoder fault cannot stall the
// stream silently forever.
const maxEncodeFailures = 30

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The stream carries no credentials and the viewer page may be
	// opened from any host on the LAN.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hijackConn adapts an already-accepted, already-sniffed net.Conn to the
// http.ResponseWriter + http.Hijacker pair gorilla's Upgrader expects. The
// buffered reader is the sniffer's, so the handshake sees the full
// original request. On a successful upgrade gorilla hijacks the conn and
// writes the 101 itself; WriteHeader and Write only ever carry rejection
// responses, which must still be well-formed HTTP.
type hijackConn struct {
	conn        net.Conn
	reader      *bufio.Reader
	header      http.Header
	wroteHeader bool
}

func (h *hijackConn) Header() http.Header {
	if h.header == nil {
		h.header = make(http.Header)
	}
	return h.header
}

func (h *hijackConn) Write(p []byte) (int, error) {
	h.WriteHeader(http.StatusOK)
	return h.conn.Write(p)
}

func (h *hijackConn) WriteHeader(statusCode int) {
	if h.wroteHeader {
		return
	}
	h.wroteHeader = true
	fmt.Fprintf(h.conn, "HTTP/1.1 %d %s\r\n", statusCode, http.StatusText(statusCode))
	h.Header().Write(h.conn)
	h.conn.Write([]byte("\r\n"))
}

func (h *hijackConn) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return h.conn, bufio.NewReadWriter(h.reader, bufio.NewWriter(h.conn)), nil
}

// streamFrames completes the WebSocket handshake on a sniffed connection
// and pumps frames until the stop signal is observed, the display index
// falls out of range, or a send fails. All failures here end only this
// connection.
func (s *session) streamFrames(conn net.Conn, br *bufio.Reader) error {
	req, err := http.ReadRequest(br)
	if err != nil {
		return fmt.Errorf("read handshake request: %w", err)
	}

	ws, err := upgrader.Upgrade(&hijackConn{conn: conn, reader: br}, req, nil)
	if err != nil {
		return fmt.Errorf("websocket handshake: %w", err)
	}
	defer ws.Close()

	s.logger.Printf("WebSocket handshake successful, starting stream for %s", conn.RemoteAddr())

	var frameCount uint64
	defer func() {
		s.logger.Printf("Client %s disconnected, sent %d frames total", conn.RemoteAddr(), frameCount)
	}()

	encodeFailures := 0
	for {
		if s.stop.Load() {
			s.logger.Printf("Stop signal received, closing client %s", conn.RemoteAddr())
			deadline := time.Now().Add(time.Second)
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream stopped"), deadline)
			return nil
		}

		// The display list can change between frames; revalidate the
		// index every iteration.
		displays, err := s.source.Displays()
		if err != nil {
			return fmt.Errorf("list displays: %w", err)
		}
		if s.displayIndex < 0 || s.displayIndex >= len(displays) {
			return fmt.Errorf("%w: index %d with %d displays", ErrDisplayOutOfRange, s.displayIndex, len(displays))
		}

		frame, err := s.source.Capture(s.displayIndex)
		if err != nil {
			return fmt.Errorf("capture display %d: %w", s.displayIndex, err)
		}

		data, err := capture.EncodeJPEG(frame, s.quality)
		if err != nil {
			encodeFailures++
			s.logger.Printf("Failed to encode frame: %v", err)
			if encodeFailures >= maxEncodeFailures {
				return fmt.Errorf("encoding failed %d frames in a row: %w", encodeFailures, err)
			}
			time.Sleep(s.frameInterval)
			continue
		}
		encodeFailures = 0

		if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return fmt.Errorf("send frame: %w", err)
		}

		frameCount++
		if frameCount%30 == 0 {
			s.logger.Printf("Sent %d frames to %s", frameCount, conn.RemoteAddr())
		}

		time.Sleep(s.frameInterval)
	}
}
