package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zombor/barcode-scanner/internal/scanning"
)

const statsLogInterval = 5 * time.Second

// Config controls a Session
type Config struct {
	// DedupeWindow suppresses a symbol identical to the previous one seen within the window
	DedupeWindow time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Session owns one live video source and the decode loop bound to it.
// At most one loop runs at a time; Start while running acquires nothing.
type Session struct {
	open    Opener
	decoder scanning.Decoder
	dedupe  time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	results chan Result

	latest   atomic.Pointer[FrameSnapshot]
	frames   atomic.Uint64
	notFound atomic.Uint64
	symbols  atomic.Uint64
	dropped  atomic.Uint64
}

// NewSession creates a Session that acquires frames through open and decodes them with decoder
func NewSession(open Opener, decoder scanning.Decoder, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		open:    open,
		decoder: decoder,
		dedupe:  cfg.DedupeWindow,
		logger:  logger,
		now:     now,
	}
}

// Start acquires the source and begins the decode loop. The returned channel
// is closed when the loop ends. ctx bounds acquisition only.
func (s *Session) Start(ctx context.Context) (<-chan Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		s.logger.Debug("Capture already running")
		return s.results, nil
	}
	// The previous loop ended on its own; its source is already closed
	s.resetLocked()

	src, err := s.open(ctx)
	if err != nil {
		var accessErr *CameraAccessError
		if !errors.As(err, &accessErr) {
			err = &CameraAccessError{Err: err}
		}
		return nil, err
	}
	if src == nil {
		return nil, &CameraAccessError{Err: errors.New("opener returned no source")}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.results = make(chan Result, 1)
	go s.loop(loopCtx, src, s.results, s.done)

	s.logger.Info("Capture started")
	return s.results, nil
}

// Stop cancels the decode loop and waits for the source to be released.
// It is a no-op when the session is not started.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return
	}
	wasRunning := s.runningLocked()
	s.resetLocked()
	if wasRunning {
		s.logger.Info("Capture stopped")
	}
}

// Running reports whether the decode loop is active
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

// LatestFrame returns the most recent frame, for previews
func (s *Session) LatestFrame() FrameSnapshot {
	snap := s.latest.Load()
	if snap == nil {
		return FrameSnapshot{}
	}
	return *snap
}

// Stats returns loop counters
func (s *Session) Stats() Stats {
	return Stats{
		Frames:   s.frames.Load(),
		NotFound: s.notFound.Load(),
		Symbols:  s.symbols.Load(),
		Dropped:  s.dropped.Load(),
	}
}

func (s *Session) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// resetLocked cancels any loop and waits for it to exit
func (s *Session) resetLocked() {
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.results = nil
	s.latest.Store(nil)
}

func (s *Session) loop(ctx context.Context, src Source, out chan<- Result, done chan<- struct{}) {
	defer close(out)
	defer close(done)
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warn("Failed to release capture source", "error", err)
		}
	}()

	statsTicker := time.NewTicker(statsLogInterval)
	defer statsTicker.Stop()

	var (
		lastText string
		lastAt   time.Time
	)
	for {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.emit(ctx, out, Result{Err: fmt.Errorf("reading frame: %w", err), At: s.now()})
			return
		}

		seq := s.frames.Add(1)
		s.latest.Store(&FrameSnapshot{Image: frame, CapturedAt: s.now(), Sequence: seq})

		select {
		case <-statsTicker.C:
			stats := s.Stats()
			s.logger.Debug("capture.stats", "frames", stats.Frames, "not_found", stats.NotFound, "symbols", stats.Symbols, "dropped", stats.Dropped)
		default:
		}

		symbol, err := s.decoder.Decode(ctx, frame)
		if errors.Is(err, scanning.ErrNotFound) {
			s.notFound.Add(1)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.emit(ctx, out, Result{Err: fmt.Errorf("decoding frame: %w", err), At: s.now()})
			return
		}

		now := s.now()
		if s.dedupe > 0 && symbol.Text == lastText && now.Sub(lastAt) < s.dedupe {
			s.dropped.Add(1)
			s.logger.Debug("Suppressed repeated symbol", "symbol", symbol.Text)
			lastAt = now
			continue
		}
		lastText, lastAt = symbol.Text, now

		s.symbols.Add(1)
		if !s.emit(ctx, out, Result{Symbol: symbol, At: now}) {
			return
		}
	}
}

// emit delivers r unless the loop is being cancelled
func (s *Session) emit(ctx context.Context, out chan<- Result, r Result) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
