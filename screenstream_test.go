package screenstream

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coder/screenstream/capture"
)

// fakeSource is a capture.Source producing solid-color frames for a
// configurable number of displays.
type fakeSource struct {
	mu           sync.Mutex
	displayCount int
	width        int
	height       int
}

func newFakeSource(displays, width, height int) *fakeSource {
	return &fakeSource{displayCount: displays, width: width, height: height}
}

func (f *fakeSource) setDisplayCount(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.displayCount = n
}

func (f *fakeSource) Displays() ([]capture.Display, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	displays := make([]capture.Display, 0, f.displayCount)
	for i := 0; i < f.displayCount; i++ {
		displays = append(displays, capture.Display{
			Index: i, X: i * f.width, Width: f.width, Height: f.height,
		})
	}
	return displays, nil
}

func (f *fakeSource) Capture(index int) (*capture.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if index < 0 || index >= f.displayCount {
		return nil, fmt.Errorf("display %d not found", index)
	}

	pix := make([]byte, f.width*f.height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i] = 30
		pix[i+1] = 144
		pix[i+2] = 255
		pix[i+3] = 255
	}
	return &capture.Frame{Width: f.width, Height: f.height, Pix: pix}, nil
}

// faultySource wraps solid-color frames with injectable capture faults: the
// first badFrames captures return a frame too short to encode (-1 means every
// capture does).
type faultySource struct {
	mu        sync.Mutex
	width     int
	height    int
	badFrames int
}

func (f *faultySource) Displays() ([]capture.Display, error) {
	return []capture.Display{{Index: 0, Width: f.width, Height: f.height}}, nil
}

func (f *faultySource) Capture(index int) (*capture.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.badFrames != 0 {
		if f.badFrames > 0 {
			f.badFrames--
		}
		return &capture.Frame{Width: f.width, Height: f.height, Pix: make([]byte, 8)}, nil
	}
	return &capture.Frame{
		Width:  f.width,
		Height: f.height,
		Pix:    make([]byte, f.width*f.height*4),
	}, nil
}

func newTestManager(t *testing.T, source capture.Source) *Manager {
	t.Helper()

	m := New(Config{
		Source:        source,
		Logger:        NoOpLogger{},
		Quality:       60,
		FrameInterval: 10 * time.Millisecond,
		PollInterval:  20 * time.Millisecond,
		SniffTimeout:  500 * time.Millisecond,
	})
	t.Cleanup(m.Stop)
	return m
}

func dialStream(t *testing.T, port uint16) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	ws, _, err := dialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/", port), nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func getViewerPage(t *testing.T, port uint16) (*http.Response, string) {
	t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	if err != nil {
		t.Fatalf("http get: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return resp, string(body)
}

func TestStopWithoutSessionIsNoOp(t *testing.T) {
	m := newTestManager(t, newFakeSource(1, 64, 48))

	// Must not panic or block, repeatedly.
	m.Stop()
	m.Stop()
}

func TestViewerPageOverHTTP(t *testing.T) {
	m := newTestManager(t, newFakeSource(1, 64, 48))

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, body := getViewerPage(t, info.Port)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html prefix", ct)
	}
	if !strings.Contains(body, "WebSocket Screen Stream") {
		t.Error("viewer page body missing title string")
	}
}

func TestStreamDeliversJPEGFrames(t *testing.T) {
	source := newFakeSource(1, 64, 48)
	m := newTestManager(t, source)

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ws := dialStream(t, info.Port)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	for i := 0; i < 3; i++ {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("reading frame %d: %v", i, err)
		}
		if msgType != websocket.BinaryMessage {
			t.Fatalf("frame %d message type = %d, want binary", i, msgType)
		}
		if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
			t.Fatalf("frame %d does not start with JPEG SOI marker", i)
		}

		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("frame %d is not a valid JPEG: %v", i, err)
		}
		if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
			t.Fatalf("frame %d dimensions = %dx%d, want 64x48", i, b.Dx(), b.Dy())
		}
	}
}

func TestDisplayIndexOutOfRangeFailsConnectionOnly(t *testing.T) {
	m := newTestManager(t, newFakeSource(1, 64, 48))

	info, err := m.Start(0, 5)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The handshake succeeds; the per-frame bounds check then ends the
	// connection.
	ws := dialStream(t, info.Port)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("expected stream to close for out-of-range display index")
	}

	// The dispatcher and the session survive.
	resp, _ := getViewerPage(t, info.Port)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("viewer page after failed connection: status = %d, want 200", resp.StatusCode)
	}
}

func TestDisplayRemovedMidStream(t *testing.T) {
	source := newFakeSource(1, 64, 48)
	m := newTestManager(t, source)

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ws := dialStream(t, info.Port)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err != nil {
		t.Fatalf("reading first frame: %v", err)
	}

	// Monitor unplugged: the index goes out of range on the next
	// revalidation and the connection ends, not the session.
	source.setDisplayCount(0)

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			t.Fatal("stream still open 2s after display removal")
		}
		break
	}

	source.setDisplayCount(1)
	resp, _ := getViewerPage(t, info.Port)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("viewer page after display removal: status = %d, want 200", resp.StatusCode)
	}
}

func TestTransientEncodeFailuresAreSkipped(t *testing.T) {
	source := &faultySource{width: 64, height: 48, badFrames: 3}
	m := newTestManager(t, source)

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The first three captures fail to encode; the pump skips them and
	// the connection delivers the frames that follow.
	ws := dialStream(t, info.Port)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	for i := 0; i < 2; i++ {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("reading frame %d after transient failures: %v", i, err)
		}
		if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
			t.Fatalf("frame %d does not start with JPEG SOI marker", i)
		}
	}
}

func TestPersistentEncodeFailuresEndConnection(t *testing.T) {
	source := &faultySource{width: 64, height: 48, badFrames: -1}
	m := newTestManager(t, source)

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Every capture fails to encode: the handshake succeeds, no frame
	// ever arrives, and the pump gives up after its failure bound rather
	// than spinning forever.
	ws := dialStream(t, info.Port)
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, _, err = ws.ReadMessage()
	if err == nil {
		t.Fatal("received a frame from a source that never encodes")
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Fatal("connection still open 5s into persistent encode failures")
	}

	// Only the connection died; the session keeps serving.
	resp, _ := getViewerPage(t, info.Port)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("viewer page after failed connection: status = %d, want 200", resp.StatusCode)
	}
}

func TestMalformedHandshakeGetsHTTPError(t *testing.T) {
	m := newTestManager(t, newFakeSource(1, 64, 48))

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", info.Port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Sniffs as WebSocket but lacks Sec-WebSocket-Key and -Version, so
	// the upgrade is rejected. The rejection must be a well-formed HTTP
	// response, status line included.
	request := "GET / HTTP/1.1\r\nHost: localhost\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n"
	if _, err := conn.Write([]byte(request)); err != nil {
		t.Fatalf("writing handshake: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	response, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("reading rejection: %v", err)
	}
	if !strings.HasPrefix(string(response), "HTTP/1.1 400") {
		t.Fatalf("rejection response = %q, want HTTP/1.1 400 status line", firstLine(string(response)))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\r\n")
	return line
}

func TestSilentConnectionDoesNotDisturbStream(t *testing.T) {
	m := newTestManager(t, newFakeSource(1, 64, 48))

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ws := dialStream(t, info.Port)
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := ws.ReadMessage(); err != nil {
		t.Fatalf("reading first frame: %v", err)
	}

	// A connection that never sends anything times out in the sniffer
	// without affecting the running stream.
	silent, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", info.Port))
	if err != nil {
		t.Fatalf("dialing silent connection: %v", err)
	}
	defer silent.Close()

	silent.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := silent.Read(make([]byte, 1)); err == nil {
		t.Error("silent connection unexpectedly received data")
	}

	for i := 0; i < 3; i++ {
		if _, _, err := ws.ReadMessage(); err != nil {
			t.Fatalf("stream broken after silent connection: %v", err)
		}
	}
}

func TestStopEndsActiveStream(t *testing.T) {
	m := newTestManager(t, newFakeSource(1, 64, 48))

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ws := dialStream(t, info.Port)
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err != nil {
		t.Fatalf("reading first frame: %v", err)
	}

	m.Stop()

	// The pump observes the stop signal within one frame interval; the
	// client sees the close within a comfortable bound after that.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue // in-flight frames may still drain
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			t.Fatal("stream still open 2s after Stop()")
		}
		return
	}
}

func TestStopClosesListener(t *testing.T) {
	m := newTestManager(t, newFakeSource(1, 64, 48))

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()
	if sess == nil {
		t.Fatal("Start() left no active session")
	}

	m.Stop()

	// The dispatcher closes the listener before signalling done, so once
	// done fires the port must refuse connections.
	select {
	case <-sess.done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher still running 2s after Stop()")
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", info.Port), 200*time.Millisecond)
	if err == nil {
		conn.Close()
		t.Fatal("listener still accepting connections after Stop()")
	}
}

func TestRestartOnSamePort(t *testing.T) {
	m := newTestManager(t, newFakeSource(1, 64, 48))

	info, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	port := info.Port
	m.Stop()

	// The listener is released within one poll interval; the rebind may
	// race it, so retry briefly rather than demanding instant success.
	deadline := time.Now().Add(3 * time.Second)
	for {
		info, err = m.Start(port, 0)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("rebinding port %d after Stop(): %v", port, err)
		}
		time.Sleep(25 * time.Millisecond)
	}

	if info.Port != port {
		t.Fatalf("restarted on port %d, want %d", info.Port, port)
	}

	resp, _ := getViewerPage(t, port)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("viewer page after restart: status = %d, want 200", resp.StatusCode)
	}
}

func TestStartReplacesPreviousSession(t *testing.T) {
	m := newTestManager(t, newFakeSource(1, 64, 48))

	if _, err := m.Start(0, 0); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}

	m.mu.Lock()
	firstSess := m.active
	m.mu.Unlock()

	second, err := m.Start(0, 0)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	// The first session is told to stop and winds down; the new one is
	// serving. The vacated port may be reused, so identify the old
	// session by its handle rather than its address.
	select {
	case <-firstSess.done:
	case <-time.After(2 * time.Second):
		t.Fatal("previous session still running 2s after replacement")
	}

	resp, _ := getViewerPage(t, second.Port)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("new session viewer page: status = %d, want 200", resp.StatusCode)
	}
}

func TestStreamInfoURL(t *testing.T) {
	info := StreamInfo{Port: 9191, LocalAddr: "192.168.1.10"}
	if got, want := info.URL(), "http://192.168.1.10:9191/"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}
