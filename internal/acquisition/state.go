package acquisition

import (
	"time"

	"github.com/zombor/barcode-scanner/internal/lookup"
)

// Mode is the active input mode. Exactly one is active at a time.
type Mode string

const (
	ModeIdle          Mode = "idle"
	ModeLiveCamera    Mode = "live_camera"
	ModeUploadedImage Mode = "uploaded_image"
)

// Status is the pipeline status shown to the user
type Status string

const (
	StatusIdle     Status = "idle"
	StatusScanning Status = "scanning"
	StatusDecoding Status = "decoding"
	StatusFetching Status = "fetching"
	// StatusSuccess means the pipeline completed, not that the product was found
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Source tells where a symbol came from
type Source string

const (
	SourceCamera Source = "camera"
	SourceImage  Source = "image"
)

// DecodedSymbol is an immutable decode event
type DecodedSymbol struct {
	Text      string    `json:"text"`
	Format    string    `json:"format,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
	Source    Source    `json:"source"`
}

// State is the controller's single source of truth. Observers get copies.
type State struct {
	AttemptID  string         `json:"attempt_id"`
	Mode       Mode           `json:"mode"`
	Status     Status         `json:"status"`
	LastSymbol *DecodedSymbol `json:"last_symbol,omitempty"`
	// LookupFailed marks LastSymbol as retryable without rescanning
	LookupFailed bool            `json:"lookup_failed,omitempty"`
	Product      *lookup.Product `json:"product,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// clone copies the state so observers never share pointers with the controller.
// Products are never mutated after a lookup returns, so they are shared.
func (s State) clone() State {
	if s.LastSymbol != nil {
		sym := *s.LastSymbol
		s.LastSymbol = &sym
	}
	return s
}
