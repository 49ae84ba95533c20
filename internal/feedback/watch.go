package feedback

import (
	"context"

	"github.com/zombor/barcode-scanner/internal/acquisition"
)

// Player is what Watch drives
type Player interface {
	Chirp()
	Buzz()
}

// Watch plays a chirp for each newly decoded symbol (not for lookup retries) and a buzz whenever an
// attempt enters the error status. It returns when ctx is done or updates closes.
func Watch(ctx context.Context, updates <-chan acquisition.State, p Player) {
	var (
		last       acquisition.DecodedSymbol
		lastStatus acquisition.Status
		first      = true
	)
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			// The first state is history, not an event
			if first {
				first = false
				if state.LastSymbol != nil {
					last = *state.LastSymbol
				}
				lastStatus = state.Status
				continue
			}
			if sym := state.LastSymbol; sym != nil && sym.Seq != last.Seq {
				// A retried lookup reuses the decoded symbol under a new Seq
				if !sameDecode(*sym, last) {
					p.Chirp()
				}
				last = *sym
			}
			if state.Status == acquisition.StatusError && lastStatus != acquisition.StatusError {
				p.Buzz()
			}
			lastStatus = state.Status
		}
	}
}

func sameDecode(sym, prev acquisition.DecodedSymbol) bool {
	return sym.Text == prev.Text && sym.Source == prev.Source && sym.Timestamp.Equal(prev.Timestamp)
}
