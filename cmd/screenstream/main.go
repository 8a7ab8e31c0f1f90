package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/screenstream"
	"github.com/coder/screenstream/version"
)

func main() {
	var (
		port        = flag.Int("port", 0, "Port to listen on (overrides config file)")
		display     = flag.Int("display", -1, "Display index to stream (overrides config file)")
		quality     = flag.Int("quality", 0, "JPEG quality 1-100 (overrides config file)")
		configPath  = flag.String("config", "", "Path to YAML config file")
		showVersion = flag.Bool("version", false, "Show version information")
		help        = flag.Bool("help", false, "Show this help message")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("screenstream %s\n", version.Full())
		os.Exit(0)
	}

	if *help {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "screenstream - hybrid HTTP/WebSocket screen streaming server\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -port 9191\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -port 9191 -display 1 -quality 75\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -config screenstream.yaml\n", os.Args[0])
		os.Exit(0)
	}

	cfg := screenstream.DefaultConfig()
	if *configPath != "" {
		loaded, err := screenstream.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if err := applyOverrides(&cfg, *port, *display, *quality); err != nil {
		log.Fatalf("%v", err)
	}

	manager := screenstream.New(cfg)

	info, err := manager.Start(cfg.Port, cfg.DisplayIndex)
	if err != nil {
		log.Fatalf("Failed to start streaming: %v", err)
	}

	log.Printf("Streaming display %d on port %d", cfg.DisplayIndex, info.Port)
	log.Printf("Viewer page: %s", info.URL())
	log.Printf("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	manager.Stop()
}

// applyOverrides merges command-line overrides into the configuration.
// Zero (or -1 for display) means the flag was not given.
func applyOverrides(cfg *screenstream.Config, port, display, quality int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", port)
	}
	if port > 0 {
		cfg.Port = uint16(port)
	}
	if display >= 0 {
		cfg.DisplayIndex = display
	}
	if quality != 0 && (quality < 1 || quality > 100) {
		return fmt.Errorf("invalid quality %d: must be between 1 and 100", quality)
	}
	if quality > 0 {
		cfg.Quality = quality
	}
	return nil
}
