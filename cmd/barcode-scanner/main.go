package main

import (
	"context"
	_ "embed"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/barcode-scanner/internal/acquisition"
	"github.com/zombor/barcode-scanner/internal/capture"
	"github.com/zombor/barcode-scanner/internal/feedback"
	"github.com/zombor/barcode-scanner/internal/lookup"
	"github.com/zombor/barcode-scanner/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("barcode-scanner")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		lookupURL     = fs.StringLong("lookup-url", "http://127.0.0.1:8000", "Product lookup service base URL")
		lookupTimeout = fs.DurationLong("lookup-timeout", 10*time.Second, "Timeout for each product lookup")
		decoderType   = fs.StringLong("decoder", "zxing", "Decoder for uploaded images: 'zxing', 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		cameraType    = fs.StringLong("camera", "v4l2", "Live source: 'v4l2' or 'screen'")
		device        = fs.StringLong("device", "/dev/video0", "V4L2 video device")
		width         = fs.IntLong("width", 1280, "Requested frame width")
		height        = fs.IntLong("height", 720, "Requested frame height")
		frameInterval = fs.DurationLong("frame-interval", 100*time.Millisecond, "Time between screen grabs")
		dedupeWindow  = fs.DurationLong("dedupe-window", 2*time.Second, "Suppress a repeated symbol seen within this window")
		screenRegion  = fs.StringLong("screen-region", "", "Screen region to scan as x,y,w,h (default whole screen)")
		beepEnabled   = fs.BoolLong("beep", "Play a tone on decode and on failure")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat     = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		_             = fs.StringLong("config", "", "Config file (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BARCODE_SCANNER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// Live frames always go through ZXing; vision models are too slow per frame
	zxing := scanning.NewZXing()
	defer zxing.Close()

	var imageDecoder scanning.Decoder
	switch *decoderType {
	case "zxing":
		imageDecoder = zxing
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini decoder...", "model", *geminiModel)
		gemini, err := scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		imageDecoder = gemini
	case "ollama":
		slog.Info("Initializing Ollama decoder...", "url", *ollamaURL, "model", *ollamaModel)
		ollama, err := scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		defer ollama.Close()
		imageDecoder = ollama
	default:
		slog.Error("Invalid decoder type", "type", *decoderType, "valid", "zxing, gemini or ollama")
		os.Exit(1)
	}

	var opener capture.Opener
	switch *cameraType {
	case "v4l2":
		opener = capture.OpenWebcam(capture.WebcamConfig{
			Device: *device,
			Width:  uint32(*width),
			Height: uint32(*height),
			Logger: logger,
		})
	case "screen":
		var region image.Rectangle
		if *screenRegion != "" {
			region, err = capture.ParseRegion(*screenRegion)
			if err != nil {
				slog.Error("Invalid screen region", "region", *screenRegion, "error", err)
				os.Exit(1)
			}
		}
		opener = capture.OpenScreen(capture.ScreenConfig{Region: region, Interval: *frameInterval})
	default:
		slog.Error("Invalid camera type", "type", *cameraType, "valid", "v4l2 or screen")
		os.Exit(1)
	}

	session := capture.NewSession(opener, zxing, capture.Config{
		DedupeWindow: *dedupeWindow,
		Logger:       logger,
	})
	products := lookup.NewClient(*lookupURL, *lookupTimeout)
	controller := acquisition.New(session, imageDecoder, products, acquisition.Config{
		LookupTimeout: *lookupTimeout,
		Logger:        logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *beepEnabled {
		beeper := feedback.NewBeeper()
		if err := beeper.Initialize(); err != nil {
			slog.Warn("Audible feedback disabled", "error", err)
		} else {
			defer beeper.Close()
			updates, unsubscribe := controller.Subscribe()
			defer unsubscribe()
			go feedback.Watch(ctx, updates, beeper)
		}
	}

	basicAuth := acquisition.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := acquisition.NewServer(controller, session, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "lookup", *lookupURL, "camera", *cameraType)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down server", "error", err)
	}
	if err := controller.Close(); err != nil {
		slog.Error("Failed to close controller", "error", err)
	}
}

// newLogger builds the process logger from --log-level and --log-format
func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
