package main

import (
	"bytes"
	"flag"
	"fmt"
	"image/jpeg"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coder/screenstream/version"
	"github.com/coder/screenstream/viewer"
)

type clientConfig struct {
	host          string
	duration      int
	captureFrames bool
	outputDir     string
	showGUI       bool
}

func main() {
	var (
		host        = flag.String("host", "localhost:9191", "Stream server host:port")
		duration    = flag.Int("duration", 10, "Duration to run client in seconds")
		capture     = flag.Bool("capture", false, "Save received frames as JPEG files")
		output      = flag.String("output", "./frames", "Output directory for captured frames")
		gui         = flag.Bool("gui", false, "Show the stream in a GUI window (requires GUI environment)")
		showVersion = flag.Bool("version", false, "Show version information")
		help        = flag.Bool("help", false, "Show this help message")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("streamclient %s\n", version.Full())
		os.Exit(0)
	}

	if *help {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "streamclient - test client for the screenstream server\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -host localhost:9191\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -host localhost:9191 -capture -output ./frames\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -host localhost:9191 -gui -duration 30\n", os.Args[0])
		os.Exit(0)
	}

	config := clientConfig{
		host:          *host,
		duration:      *duration,
		captureFrames: *capture,
		outputDir:     *output,
		showGUI:       *gui,
	}

	if config.showGUI {
		// GUI event loop must own the main thread.
		viewer.RunWithStreamClient("Screen Stream - "+config.host, 1024, 768, func(v *viewer.FrameViewer) {
			defer v.Close()
			runClient(config, v)
		})
	} else {
		runClient(config, nil)
	}
}

func runClient(config clientConfig, v *viewer.FrameViewer) {
	if config.captureFrames {
		if err := os.MkdirAll(config.outputDir, 0o755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	u := url.URL{Scheme: "ws", Host: config.host, Path: "/"}
	log.Printf("Connecting to %s", u.String())

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer ws.Close()

	log.Printf("Connected, receiving frames for %d seconds", config.duration)

	deadline := time.Now().Add(time.Duration(config.duration) * time.Second)
	frameCount := 0
	windowFrames := 0
	windowStart := time.Now()

	for time.Now().Before(deadline) {
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			log.Printf("Connection ended: %v", err)
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		frameCount++
		windowFrames++

		if config.captureFrames {
			name := filepath.Join(config.outputDir, fmt.Sprintf("frame_%04d.jpg", frameCount))
			if err := os.WriteFile(name, data, 0o644); err != nil {
				log.Printf("Failed to save frame %d: %v", frameCount, err)
			}
		}

		if v != nil {
			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				log.Printf("Failed to decode frame %d: %v", frameCount, err)
				continue
			}
			v.UpdateFrame(img)
		}

		if elapsed := time.Since(windowStart); elapsed >= time.Second {
			log.Printf("Receiving at %.1f fps (%d frames total)",
				float64(windowFrames)/elapsed.Seconds(), frameCount)
			windowFrames = 0
			windowStart = time.Now()
		}
	}

	log.Printf("Done, received %d frames", frameCount)
}
