package screenstream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sniffLimit caps how many opening bytes are inspected for classification.
const sniffLimit = 8 * 1024

type protocol int

const (
	protocolHTTP protocol = iota
	protocolWebSocket
)

var headerTerminator = []byte("\r\n\r\n")

// sniffProtocol classifies a new connection by peeking at its opening bytes
// without consuming them; the same buffered reader then feeds whichever
// parser is selected, so it sees the full original request. The peek grows
// one byte at a time until the request head is complete (terminated by a
// blank line), an error cuts it short, or the sniff limit is reached. The
// caller bounds the wait with a read deadline on the underlying connection.
func sniffProtocol(br *bufio.Reader) (protocol, []byte, error) {
	want := 1
	for {
		head, err := br.Peek(want)
		if len(head) == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return protocolHTTP, nil, ErrEmptyRequest
			}
			return protocolHTTP, nil, fmt.Errorf("%w (%v)", ErrEmptyRequest, err)
		}
		if bytes.Contains(head, headerTerminator) || err != nil || len(head) >= sniffLimit {
			return classify(head), head, nil
		}
		want = len(head) + 1
	}
}

// classify is binary: a request carrying a websocket upgrade header (any
// case, with or without the space after the colon) goes to the WebSocket
// path, everything else to HTTP.
func classify(head []byte) protocol {
	request := strings.ToLower(string(head))
	if strings.Contains(request, "upgrade: websocket") || strings.Contains(request, "upgrade:websocket") {
		return protocolWebSocket
	}
	return protocolHTTP
}
