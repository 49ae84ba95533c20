package acquisition

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/barcode-scanner/internal/capture"
	"github.com/zombor/barcode-scanner/internal/lookup"
	"github.com/zombor/barcode-scanner/internal/scanning"
)

// User-visible error messages
const (
	msgCameraAccess = "could not access camera"
	msgStreamFailed = "camera scanning stopped unexpectedly"
	msgNoSymbol     = "no symbol detected"
	msgImageDecode  = "could not decode image"
	msgLookupFailed = "could not fetch product details"
)

const defaultLookupTimeout = 10 * time.Second

var (
	// ErrAlreadyScanning is returned by BeginLiveScan while live mode is active
	ErrAlreadyScanning = errors.New("live scan already in progress")
	// ErrNothingToRetry is returned by RetryLookup when no failed lookup is retained
	ErrNothingToRetry = errors.New("no failed lookup to retry")
	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("controller closed")
)

// CaptureSession is the live camera contract the controller drives
type CaptureSession interface {
	Start(ctx context.Context) (<-chan capture.Result, error)
	Stop()
}

// ProductLookup fetches product details for a symbol
type ProductLookup interface {
	Lookup(ctx context.Context, symbol string) (*lookup.Product, error)
}

// IDGenerator generates attempt IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemTime struct{}

func (systemTime) Now() time.Time {
	return time.Now()
}

// Config holds optional controller settings
type Config struct {
	// LookupTimeout bounds each product lookup; zero means 10s
	LookupTimeout time.Duration
	Logger        *slog.Logger
	IDGenerator   IDGenerator
	TimeSource    TimeSource
	// DecodeUpload turns uploaded bytes into an image; defaults to scanning.DecodeUpload
	DecodeUpload func(data []byte, contentType string) (image.Image, error)
}

// Controller is the acquisition state machine. A single goroutine applies every
// state mutation; camera acquisition, decoding and lookups run off that goroutine
// and post their completions back to it.
type Controller struct {
	session       CaptureSession
	decoder       scanning.Decoder
	products      ProductLookup
	decodeUpload  func([]byte, string) (image.Image, error)
	lookupTimeout time.Duration
	logger        *slog.Logger
	ids           IDGenerator
	clock         TimeSource

	// modeMu serializes every operation that touches the capture session
	modeMu sync.Mutex

	ops       chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	baseCtx   context.Context
	cancel    context.CancelFunc

	// Owned by the loop goroutine
	state   State
	seq     uint64 // last sequence number handed out
	latest  uint64 // lookups for any other sequence are stale
	epoch   uint64 // bumped when a mode is entered or left
	subs    map[int]chan State
	nextSub int
}

// New creates a Controller in the Idle state and starts its loop
func New(session CaptureSession, decoder scanning.Decoder, products ProductLookup, cfg Config) *Controller {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = uuidGenerator{}
	}
	if cfg.TimeSource == nil {
		cfg.TimeSource = systemTime{}
	}
	if cfg.DecodeUpload == nil {
		cfg.DecodeUpload = scanning.DecodeUpload
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		session:       session,
		decoder:       decoder,
		products:      products,
		decodeUpload:  cfg.DecodeUpload,
		lookupTimeout: cfg.LookupTimeout,
		logger:        cfg.Logger,
		ids:           cfg.IDGenerator,
		clock:         cfg.TimeSource,
		ops:           make(chan func()),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		baseCtx:       ctx,
		cancel:        cancel,
		subs:          make(map[int]chan State),
	}
	c.state = State{AttemptID: c.ids.Generate(), Mode: ModeIdle, Status: StatusIdle, UpdatedAt: c.clock.Now()}
	go c.loop()
	return c
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.quit:
			for id, ch := range c.subs {
				close(ch)
				delete(c.subs, id)
			}
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it
func (c *Controller) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case c.ops <- func() {
		defer close(finished)
		fn()
	}:
	case <-c.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// publish stamps the state and hands a copy to every subscriber, replacing
// any copy they have not read yet
func (c *Controller) publish() {
	c.state.UpdatedAt = c.clock.Now()
	snap := c.state.clone()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// newAttempt discards everything from the previous attempt, including
// in-flight lookups and decodes, and returns the new epoch
func (c *Controller) newAttempt(mode Mode, status Status) uint64 {
	c.seq++
	c.latest = c.seq
	c.epoch++
	c.state = State{AttemptID: c.ids.Generate(), Mode: mode, Status: status}
	return c.epoch
}

// State returns a copy of the current state
func (c *Controller) State() State {
	var s State
	if err := c.do(func() { s = c.state.clone() }); err != nil {
		return State{Mode: ModeIdle, Status: StatusIdle}
	}
	return s
}

// Subscribe returns a channel that always holds the latest state, starting
// with the current one. The channel is closed by the returned cancel func or
// by Close.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	var id int
	err := c.do(func() {
		id = c.nextSub
		c.nextSub++
		c.subs[id] = ch
		ch <- c.state.clone()
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			_ = c.do(func() {
				if sub, ok := c.subs[id]; ok {
					delete(c.subs, id)
					close(sub)
				}
			})
		})
	}
}

// BeginLiveScan starts the camera and the continuous decode loop
func (c *Controller) BeginLiveScan(ctx context.Context) error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	var (
		epoch uint64
		busy  bool
	)
	if err := c.do(func() {
		if c.state.Mode == ModeLiveCamera {
			busy = true
			return
		}
		epoch = c.newAttempt(ModeIdle, StatusIdle)
		c.publish()
	}); err != nil {
		return err
	}
	if busy {
		return ErrAlreadyScanning
	}

	// A previous run may still hold the device while its auto-stop is pending
	c.session.Stop()

	results, startErr := c.session.Start(ctx)
	if startErr != nil {
		c.logger.Error("Failed to start camera", "error", startErr)
		if err := c.do(func() {
			if c.epoch != epoch {
				return
			}
			c.state.Mode = ModeIdle
			c.state.Status = StatusError
			c.state.ErrorMessage = msgCameraAccess
			c.publish()
		}); err != nil {
			return err
		}
		return startErr
	}

	current := false
	if err := c.do(func() {
		if c.epoch != epoch {
			return
		}
		current = true
		c.state.Mode = ModeLiveCamera
		c.state.Status = StatusScanning
		c.publish()
	}); err != nil || !current {
		c.session.Stop()
		return err
	}

	go c.forward(epoch, results)
	return nil
}

// forward feeds capture results into the loop until the session closes the channel
func (c *Controller) forward(epoch uint64, results <-chan capture.Result) {
	for r := range results {
		r := r
		if err := c.do(func() { c.onLiveResult(epoch, r) }); err != nil {
			return
		}
	}
}

func (c *Controller) onLiveResult(epoch uint64, r capture.Result) {
	if epoch != c.epoch || c.state.Mode != ModeLiveCamera {
		c.logger.Debug("Dropping result from inactive capture", "symbol", r.Symbol.Text)
		return
	}
	if r.Err != nil {
		c.logger.Error("Live scanning failed", "error", r.Err)
		c.epoch++
		c.state.Mode = ModeIdle
		// A symbol already being looked up still gets its answer
		if c.state.Status != StatusFetching {
			c.state.Status = StatusError
			c.state.ErrorMessage = msgStreamFailed
		}
		c.publish()
		go c.stopCapture(c.epoch)
		return
	}
	c.handleSymbol(r.Symbol, r.At, SourceCamera)
}

// EndLiveScan stops the camera. An in-flight lookup is left to complete.
func (c *Controller) EndLiveScan() error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	c.session.Stop()
	return c.do(func() {
		if c.state.Mode != ModeLiveCamera {
			return
		}
		c.epoch++
		c.state.Mode = ModeIdle
		if c.state.Status == StatusScanning {
			c.state.Status = StatusIdle
		}
		c.publish()
	})
}

// SubmitImage decodes an uploaded still image and looks up its symbol.
// Live scanning is stopped before decoding starts.
func (c *Controller) SubmitImage(ctx context.Context, data []byte, contentType string) error {
	c.modeMu.Lock()
	c.session.Stop()
	var epoch uint64
	err := c.do(func() {
		epoch = c.newAttempt(ModeUploadedImage, StatusDecoding)
		c.publish()
	})
	c.modeMu.Unlock()
	if err != nil {
		return err
	}

	var symbol scanning.Symbol
	img, decodeErr := c.decodeUpload(data, contentType)
	if decodeErr == nil {
		symbol, decodeErr = c.decoder.Decode(ctx, img)
	}
	at := c.clock.Now()

	if err := c.do(func() { c.onImageDecoded(epoch, symbol, at, decodeErr) }); err != nil {
		return err
	}
	return decodeErr
}

func (c *Controller) onImageDecoded(epoch uint64, symbol scanning.Symbol, at time.Time, err error) {
	if epoch != c.epoch {
		c.logger.Debug("Dropping superseded image decode", "symbol", symbol.Text)
		return
	}
	switch {
	case err == nil:
		c.handleSymbol(symbol, at, SourceImage)
		return
	case errors.Is(err, scanning.ErrNotFound):
		c.state.ErrorMessage = msgNoSymbol
	default:
		c.logger.Error("Failed to decode image", "error", err)
		c.state.ErrorMessage = msgImageDecode
	}
	c.state.Mode = ModeIdle
	c.state.Status = StatusError
	c.publish()
}

// RetryLookup repeats the lookup for a symbol whose lookup failed
func (c *Controller) RetryLookup() error {
	var retryErr error
	if err := c.do(func() {
		sym := c.state.LastSymbol
		if sym == nil || !c.state.LookupFailed || c.state.Status != StatusError {
			retryErr = ErrNothingToRetry
			return
		}
		c.handleSymbol(scanning.Symbol{Text: sym.Text, Format: sym.Format}, sym.Timestamp, sym.Source)
	}); err != nil {
		return err
	}
	return retryErr
}

// Reset releases the camera, discards in-flight work and returns to Idle
func (c *Controller) Reset() error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	c.session.Stop()
	return c.do(func() {
		c.newAttempt(ModeIdle, StatusIdle)
		c.publish()
	})
}

// Close tears the controller down: the camera is released, pending lookups
// are cancelled and subscriber channels are closed
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.modeMu.Lock()
		c.session.Stop()
		c.modeMu.Unlock()

		c.cancel()
		close(c.quit)
		<-c.done
	})
	return nil
}

// handleSymbol starts the single in-flight lookup for a decoded symbol.
// A newer symbol supersedes it; its result is then discarded.
func (c *Controller) handleSymbol(symbol scanning.Symbol, at time.Time, source Source) {
	c.seq++
	seq := c.seq
	c.latest = seq

	c.state.LastSymbol = &DecodedSymbol{
		Text:      symbol.Text,
		Format:    symbol.Format,
		Timestamp: at,
		Seq:       seq,
		Source:    source,
	}
	c.state.Product = nil
	c.state.ErrorMessage = ""
	c.state.LookupFailed = false
	c.state.Status = StatusFetching
	c.publish()

	c.logger.Info("Symbol decoded", "symbol", symbol.Text, "format", symbol.Format, "seq", seq, "source", source)
	go c.fetch(seq, symbol.Text)
}

func (c *Controller) fetch(seq uint64, text string) {
	ctx, cancel := context.WithTimeout(c.baseCtx, c.lookupTimeout)
	defer cancel()

	product, err := c.products.Lookup(ctx, text)
	_ = c.do(func() { c.onLookup(seq, product, err) })
}

func (c *Controller) onLookup(seq uint64, product *lookup.Product, err error) {
	if seq != c.latest {
		c.logger.Debug("Discarding stale lookup", "seq", seq, "latest", c.latest)
		return
	}
	if err != nil {
		c.logger.Error("Failed to fetch product details", "symbol", c.state.LastSymbol.Text, "error", err)
		c.state.Status = StatusError
		c.state.ErrorMessage = msgLookupFailed
		c.state.Product = nil
		c.state.LookupFailed = true
	} else {
		c.state.Status = StatusSuccess
		c.state.Product = product
		c.state.ErrorMessage = ""
	}

	// Live scanning ends after the first completed lookup
	if c.state.Mode == ModeLiveCamera {
		c.epoch++
		go c.stopCapture(c.epoch)
	}
	c.state.Mode = ModeIdle
	c.publish()
}

// stopCapture releases the camera unless another mode change got there first
func (c *Controller) stopCapture(epoch uint64) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	current := false
	if err := c.do(func() { current = c.epoch == epoch }); err != nil {
		return
	}
	if current {
		c.session.Stop()
	}
}
