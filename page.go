package screenstream

import (
	"fmt"
	"net"
)

// viewerPage is the self-contained viewer served to any non-WebSocket
// request. It opens a WebSocket back to the same host/port, draws each
// binary message onto a canvas, and shows a rolling FPS/latency readout
// computed from inter-frame arrival times.
const viewerPage = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>WebSocket Screen Stream</title>
    <style>
        body {
            margin: 0;
            padding: 20px;
            background: #1a1a1a;
            color: #fff;
            font-family: Arial, sans-serif;
            display: flex;
            flex-direction: column;
            align-items: center;
            justify-content: center;
            min-height: 100vh;
        }
        h1 {
            margin-bottom: 20px;
        }
        canvas {
            max-width: 90vw;
            max-height: 80vh;
            border: 2px solid #333;
            border-radius: 8px;
            background: #000;
        }
        .info {
            margin-top: 20px;
            padding: 15px;
            background: #2a2a2a;
            border-radius: 8px;
            text-align: center;
        }
        .status {
            color: #4caf50;
            font-weight: bold;
        }
        .error {
            color: #f44336;
        }
    </style>
</head>
<body>
    <h1>WebSocket Screen Stream</h1>
    <canvas id="stream"></canvas>
    <div class="info">
        <div id="status" class="status">Connecting...</div>
        <p id="fps">FPS: 0 | Latency: 0ms</p>
    </div>
    <script>
        const canvas = document.getElementById('stream');
        const ctx = canvas.getContext('2d');
        const statusDiv = document.getElementById('status');
        const fpsDisplay = document.getElementById('fps');

        let frameCount = 0;
        let fps = 0;
        let lastUpdate = Date.now();
        let lastFrameTime = Date.now();

        const ws = new WebSocket('ws://' + window.location.host);
        ws.binaryType = 'arraybuffer';

        ws.onopen = function() {
            statusDiv.textContent = '● Live';
            statusDiv.className = 'status';
        };

        ws.onmessage = function(event) {
            const now = Date.now();
            const latency = now - lastFrameTime;
            lastFrameTime = now;

            const blob = new Blob([event.data], { type: 'image/jpeg' });
            const url = URL.createObjectURL(blob);

            const img = new Image();
            img.onload = function() {
                if (canvas.width === 0) {
                    canvas.width = img.width;
                    canvas.height = img.height;
                }

                ctx.drawImage(img, 0, 0);
                URL.revokeObjectURL(url);

                frameCount++;
                if (now - lastUpdate >= 1000) {
                    fps = frameCount;
                    fpsDisplay.textContent = 'FPS: ' + fps + ' | Latency: ' + latency + 'ms';
                    frameCount = 0;
                    lastUpdate = now;
                }
            };
            img.src = url;
        };

        ws.onerror = function() {
            statusDiv.textContent = '● Error';
            statusDiv.className = 'error';
        };

        ws.onclose = function() {
            statusDiv.textContent = '● Disconnected';
            statusDiv.className = 'error';
        };
    </script>
</body>
</html>`

// writeViewerPage answers a classified-HTTP connection with one fixed 200
// response and leaves the connection to be closed by the caller. Any
// request method or path gets the same page.
func writeViewerPage(conn net.Conn) error {
	response := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Type: text/html; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		len(viewerPage), viewerPage)

	if _, err := conn.Write([]byte(response)); err != nil {
		return fmt.Errorf("write viewer page: %w", err)
	}
	return nil
}
