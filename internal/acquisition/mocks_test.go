package acquisition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/zombor/barcode-scanner/internal/capture"
	"github.com/zombor/barcode-scanner/internal/lookup"
	"github.com/zombor/barcode-scanner/internal/scanning"
)

// mockSession is a mock implementation of CaptureSession that tracks device ownership
type mockSession struct {
	mu       sync.Mutex
	starts   int
	stops    int
	held     int
	maxHeld  int
	startErr error
	results  chan capture.Result
}

func newMockSession() *mockSession {
	return &mockSession{}
}

func (m *mockSession) Start(ctx context.Context) (<-chan capture.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	if m.results != nil {
		return m.results, nil
	}
	m.starts++
	m.held++
	if m.held > m.maxHeld {
		m.maxHeld = m.held
	}
	m.results = make(chan capture.Result, 8)
	return m.results, nil
}

func (m *mockSession) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		return
	}
	m.stops++
	m.held--
	close(m.results)
	m.results = nil
}

// emit delivers a result as if the decode loop produced it
func (m *mockSession) emit(r capture.Result) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		return false
	}
	m.results <- r
	return true
}

func (m *mockSession) symbol(text string) bool {
	return m.emit(capture.Result{Symbol: scanning.Symbol{Text: text, Format: "EAN_13"}, At: fixedTime})
}

func (m *mockSession) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

func (m *mockSession) counts() (starts, stops, maxHeld int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops, m.maxHeld
}

// labeledImage carries the text the mock decoder will "see"
type labeledImage struct {
	*image.Gray
	label string
}

var errUnreadable = errors.New("unreadable upload")

// decodeLabeled is a DecodeUpload replacement: the upload bytes become the label
func decodeLabeled(data []byte, contentType string) (image.Image, error) {
	if string(data) == "!unreadable" {
		return nil, &scanning.DecodeError{ContentType: contentType, Err: errUnreadable}
	}
	return labeledImage{Gray: image.NewGray(image.Rect(0, 0, 1, 1)), label: string(data)}, nil
}

// mockDecoder decodes labeledImages and records how many devices were held while decoding
type mockDecoder struct {
	mu         sync.Mutex
	session    *mockSession
	heldDuring []int
	decodeErr  error
}

func (m *mockDecoder) Decode(ctx context.Context, img image.Image) (scanning.Symbol, error) {
	m.mu.Lock()
	m.heldDuring = append(m.heldDuring, m.session.Held())
	decodeErr := m.decodeErr
	m.mu.Unlock()

	if decodeErr != nil {
		return scanning.Symbol{}, decodeErr
	}
	l, ok := img.(labeledImage)
	if !ok || l.label == "" {
		return scanning.Symbol{}, scanning.ErrNotFound
	}
	return scanning.Symbol{Text: l.label, Format: "EAN_13"}, nil
}

func (m *mockDecoder) Close() error { return nil }

func (m *mockDecoder) held() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.heldDuring...)
}

// mockLookup answers lookups from canned responses. Symbols with a gate
// block until the gate is closed.
type mockLookup struct {
	mu       sync.Mutex
	products map[string]*lookup.Product
	errs     map[string]error
	gates    map[string]chan struct{}
	calls    []string
}

func newMockLookup() *mockLookup {
	return &mockLookup{
		products: make(map[string]*lookup.Product),
		errs:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
	}
}

func (m *mockLookup) Lookup(ctx context.Context, symbol string) (*lookup.Product, error) {
	m.mu.Lock()
	m.calls = append(m.calls, symbol)
	gate := m.gates[symbol]
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &lookup.Error{Symbol: symbol, Err: ctx.Err()}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[symbol]; err != nil {
		return nil, err
	}
	if p, ok := m.products[symbol]; ok {
		return p, nil
	}
	return &lookup.Product{Status: "success", Barcode: symbol, Name: "Product " + symbol}, nil
}

func (m *mockLookup) hold(symbol string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.gates[symbol] = gate
	return gate
}

func (m *mockLookup) fail(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

func (m *mockLookup) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// mockIDGenerator hands out attempt-1, attempt-2, ...
type mockIDGenerator struct {
	mu sync.Mutex
	n  int
}

func (m *mockIDGenerator) Generate() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return fmt.Sprintf("attempt-%d", m.n)
}

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// mockTimeSource always returns the same instant
type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}
