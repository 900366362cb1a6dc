// Package scanner turns gpio edge events into decoded HT6xx remote codes.
//
// It owns the decoder of package ht600, feeds it from a port.Event channel
// and publishes every completed frame as a Code. Key repeats (the encoder
// chips retransmit as long as the transmit enable pin is held) are collapsed
// to one Code per repeat interval.
package scanner

import (
	"time"

	"github.com/womat/debug"

	"htrx/pkg/ht600"
	"htrx/pkg/port"
)

// tickLengthUs is the decoder tick resolution. Event timestamps are
// converted to microseconds before they are handed to the decoder.
const tickLengthUs = 1

// Config holds the receiver parameters of the Scanner.
type Config struct {
	// FoscKHz is the oscillator frequency of the transmitting encoder.
	FoscKHz uint
	// Tolerance is the accepted pulse timing deviation as a fraction.
	Tolerance float64
	// NoiseFilter is the minimum accepted pulse width.
	NoiseFilter time.Duration
	// RepeatInterval collapses retransmissions of the same code.
	RepeatInterval time.Duration
}

// Code is one decoded transmission.
type Code struct {
	// Time is the receive time of the frame.
	Time time.Time
	// Value holds the 16 usable data bits, floating bits read as 0.
	Value uint16
	// OpenMask marks the floating data bits.
	OpenMask uint16
	// Tristate is the human readable rendering, msb first, e.g. "01ZZ0101...".
	Tristate string
}

// Scanner represents the handler of the decoding pipeline.
type Scanner struct {
	decoder *ht600.Decoder

	repeatInterval time.Duration
	lastValue      uint16
	lastOpen       uint16
	lastTime       time.Time

	// C is the channel the decoded codes are sent to
	C chan Code

	// rx is the channel to receive the line events
	rx chan port.Event

	// quit is the channel to stop the Scanner
	quit chan bool
	// done signals that run() is stopped
	done chan bool
}

// New initials a new Scanner and starts its event loop.
func New(c chan port.Event, cfg Config) *Scanner {
	s := &Scanner{
		decoder: ht600.New(cfg.FoscKHz, cfg.Tolerance, tickLengthUs,
			uint(cfg.NoiseFilter/time.Microsecond)),
		repeatInterval: cfg.RepeatInterval,
		C:              make(chan Code),
		rx:             c,
		quit:           make(chan bool),
		done:           make(chan bool),
	}

	debug.InfoLog.Printf("ht6xx scanner started (fosc %v kHz, tolerance %v)", cfg.FoscKHz, cfg.Tolerance)

	go s.run()
	return s
}

// Close stops decoding.
func (s *Scanner) Close() error {
	s.quit <- true

	// wait until run() is terminated
	<-s.done

	close(s.C)
	close(s.quit)
	close(s.done)
	return nil
}

// run receives events and sends them to eventHandler to decode.
func (s *Scanner) run() {
	for {
		select {
		case <-s.quit:
			s.done <- true
			return
		case evt, open := <-s.rx:
			if !open {
				s.quit <- true
				continue
			}

			s.eventHandler(evt)
		}
	}
}

// eventHandler feeds one edge into the decoder and drains a completed frame.
func (s *Scanner) eventHandler(event port.Event) {
	ticks := uint32(event.Timestamp / time.Microsecond)

	switch event.Type {
	case port.RisingEdge:
		s.decoder.ProcessEvent(true, ticks)
	case port.FallingEdge:
		s.decoder.ProcessEvent(false, ticks)
	default:
		debug.ErrorLog.Printf("invalid event type %v", event.Type)
		return
	}

	if !s.decoder.Available() {
		return
	}

	code := Code{
		Time:     time.Now(),
		Value:    s.decoder.Value(false),
		OpenMask: s.decoder.OpenMask(true),
		Tristate: s.decoder.Tristate(),
	}

	// the decoder is frozen in done until reset, so it is released before
	// the code is handed to the consumer
	s.decoder.Reset()

	// collapse key repeats: the chips retransmit the identical word for as
	// long as the button is held
	if code.Value == s.lastValue && code.OpenMask == s.lastOpen &&
		code.Time.Sub(s.lastTime) < s.repeatInterval {
		debug.TraceLog.Printf("suppressing repeated code %s", code.Tristate)
		return
	}

	s.lastValue = code.Value
	s.lastOpen = code.OpenMask
	s.lastTime = code.Time

	debug.DebugLog.Printf("received code %s (value %04x, open %04x)", code.Tristate, code.Value, code.OpenMask)
	s.C <- code
}
