// Package feedback plays short tones when the scanner decodes a symbol or fails.
package feedback

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(44100)

// Beeper plays tones through the system speaker
type Beeper struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	initialized bool
}

// NewBeeper creates a Beeper. Call Initialize before playing.
func NewBeeper() *Beeper {
	return &Beeper{mixer: &beep.Mixer{}}
}

// Initialize opens the speaker
func (b *Beeper) Initialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("initializing speaker: %w", err)
	}
	speaker.Play(b.mixer)
	b.initialized = true
	return nil
}

// Chirp plays the short high tone for a decoded symbol
func (b *Beeper) Chirp() {
	b.play(beep.Take(sampleRate.N(80*time.Millisecond), newTone(sampleRate, 2200, 0.25)))
}

// Buzz plays the low tone for a failed attempt
func (b *Beeper) Buzz() {
	b.play(beep.Take(sampleRate.N(200*time.Millisecond), newTone(sampleRate, 180, 0.2)))
}

func (b *Beeper) play(s beep.Streamer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return
	}
	speaker.Lock()
	b.mixer.Add(s)
	speaker.Unlock()
}

// Close silences the speaker
func (b *Beeper) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	b.initialized = false
	return nil
}

// tone is a sine wave with a short linear attack and release
type tone struct {
	sr        beep.SampleRate
	freq      float64
	amplitude float64
	ramp      int
	pos       int
}

func newTone(sr beep.SampleRate, freq, amplitude float64) *tone {
	return &tone{
		sr:        sr,
		freq:      freq,
		amplitude: amplitude,
		ramp:      sr.N(5 * time.Millisecond),
	}
}

func (t *tone) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		secs := float64(t.pos) / float64(t.sr)
		envelope := math.Min(float64(t.pos)/float64(t.ramp), 1.0)
		sample := t.amplitude * envelope * math.Sin(2*math.Pi*t.freq*secs)

		samples[i][0] = sample
		samples[i][1] = sample
		t.pos++
	}
	return len(samples), true
}

func (t *tone) Err() error {
	return nil
}
