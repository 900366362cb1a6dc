// Package ht600 is a software decoder for the trinary PWM code of the
// Holtek HT600/HT680/HT6207 fixed code encoder family.
//
// A transmission (one "information word") is a long low pilot period followed
// by 2 sync bits and 18 data bits. Each bit is transmitted as two symbols,
// a symbol being a low pulse followed by a high pulse of one or two base
// periods T (T = 33/fosc):
//
//	symbol 0: short low, long high
//	symbol 1: long low, short high
//
//	bit '0':  symbol 0 + symbol 0
//	bit '1':  symbol 1 + symbol 1
//	bit 'Z':  symbol 1 + symbol 0   (floating / high impedance pin)
//	sync:     symbol 0 + symbol 1   (only legal as bit 0 and 1)
//
// The decoder consumes raw edge events (pin level + tick timestamp) and
// assembles them into a 20 bit frame. Framing violations are never reported
// as errors; RF reception is lossy and the only sane policy is to drop the
// partial frame and wait for the next pilot.
package ht600

import "sync/atomic"

// State represents the framing state of the decoder.
type State int32

const (
	// Idle means no valid pilot period has been seen yet.
	Idle State = iota
	// Reading means a pilot was accepted and sync/data bits are accumulating.
	Reading
	// Done means a complete frame is buffered and frozen until Reset.
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reading:
		return "reading"
	case Done:
		return "done"
	}
	return "invalid"
}

const (
	// frameBits is the total frame length, 2 sync bits + 18 data bits.
	frameBits = 20
	// syncBits is the length of the sync field at the start of the frame.
	syncBits = 2
	// payloadBits is the number of data bits exposed to the caller.
	// The chips transmit 18 data bits but the last two are dummy bits;
	// they are decoded and buffered, never read back.
	payloadBits = 16
	// pilotPeriods is the pilot length in base periods: 6 bit times of 6T.
	pilotPeriods = 36
)

// pulseClass is the classification of a single pulse duration.
type pulseClass int

const (
	unclassified pulseClass = iota
	shortPulse              // one base period
	longPulse               // two base periods
	pilotPulse              // at least the pilot threshold, no upper bound
)

// Decoder decodes one receiver line. All mutable state is owned by
// ProcessEvent, which must be called from a single goroutine (typically the
// gpio event loop). The framing state is accessed atomically so that another
// goroutine may poll Available/State; once it observes Done the frame buffer
// is quiescent and may be read until Reset is called. Reset must not run
// concurrently with ProcessEvent.
type Decoder struct {
	// tick thresholds, derived once in New and immutable afterwards
	shortTickMin    uint16
	shortTickMax    uint16
	longTickMin     uint16
	longTickMax     uint16
	pilotTickMin    uint16
	noiseFilterTick uint16

	// state holds a State value, accessed via sync/atomic
	state int32

	// two parallel bitmaps hold the ternary frame: bufferHL carries the
	// high/low value of a bit, bufferZ marks it floating. 20 bits, 3 bytes.
	bufferHL [3]byte
	bufferZ  [3]byte

	// bitIndex is the next frame bit to fill (0..19, sync bits included)
	bitIndex int
	// halfSymbolRead is set after the first symbol of a bit was classified
	halfSymbolRead bool
	// lastSymbol is the value of that first symbol
	lastSymbol bool

	lastEdgeTick uint32
	// periodLow/periodHigh are the durations of the most recent low and
	// high pulse, saturated at 0xFFFF ticks
	periodLow  uint16
	periodHigh uint16
}

// New derives the pulse timing thresholds and returns a ready decoder.
//
// foscKHz is the encoder oscillator frequency set by Rosc (see the Fosc
// constants), tolerance the accepted timing deviation as a fraction (0.3 for
// 30%; values near 0.5 make the short and long ranges overlap and are the
// caller's problem), tickLengthUs the resolution of the caller's timestamp
// source and noiseFilterUs the minimum pulse width accepted as a genuine
// transition.
func New(foscKHz uint, tolerance float64, tickLengthUs, noiseFilterUs uint) *Decoder {
	// one base period T is 33 oscillator cycles: T(µs) = 33000 / fosc(kHz)
	basePeriodUs := 33000.0 / float64(foscKHz)
	tTicks := basePeriodUs / float64(tickLengthUs)

	d := &Decoder{
		shortTickMin:    uint16(tTicks * (1 - tolerance)),
		shortTickMax:    uint16(tTicks * (1 + tolerance)),
		longTickMin:     uint16(tTicks * 2 * (1 - tolerance)),
		longTickMax:     uint16(tTicks * 2 * (1 + tolerance)),
		pilotTickMin:    uint16(tTicks * pilotPeriods * (1 - tolerance)),
		noiseFilterTick: uint16(noiseFilterUs / tickLengthUs),
	}

	d.Reset()
	return d
}

// Available reports whether a complete frame is buffered.
func (d *Decoder) Available() bool {
	return d.State() == Done
}

// State returns the current framing state.
func (d *Decoder) State() State {
	return State(atomic.LoadInt32(&d.state))
}

func (d *Decoder) setState(s State) {
	atomic.StoreInt32(&d.state, int32(s))
}

// Reset returns the decoder to its initial state and clears the frame
// buffer. It is the only way to leave Done and accept the next frame.
func (d *Decoder) Reset() {
	d.setState(Idle)
	d.bitIndex = 0
	d.halfSymbolRead = false
	d.lastSymbol = false
	d.lastEdgeTick = 0
	d.periodLow = 0
	d.periodHigh = 0

	for i := range d.bufferHL {
		d.bufferHL[i] = 0
		d.bufferZ[i] = 0
	}
}

// classify sorts a pulse duration into one of the configured ranges.
// The pilot range only makes sense for low pulses; the caller checks that.
func (d *Decoder) classify(ticks uint16) pulseClass {
	switch {
	case ticks >= d.shortTickMin && ticks <= d.shortTickMax:
		return shortPulse
	case ticks >= d.longTickMin && ticks <= d.longTickMax:
		return longPulse
	case ticks > d.pilotTickMin:
		return pilotPulse
	}
	return unclassified
}

// ProcessEvent feeds one pin transition into the decoder.
//
// pinState is the level of the pin after the transition, ticks the timestamp
// of the transition. Tick wraps are tolerated through unsigned subtraction.
// In Done the call is accepted but changes nothing until Reset.
func (d *Decoder) ProcessEvent(pinState bool, ticks uint32) {
	if d.State() == Done {
		return
	}

	delta := ticks - d.lastEdgeTick

	// transitions closer than the noise filter are glitches; they are
	// dropped without advancing lastEdgeTick, so the next edge is still
	// measured against the last accepted one
	if delta < uint32(d.noiseFilterTick) {
		return
	}
	d.lastEdgeTick = ticks

	// saturate instead of wrapping, an overflowed duration must not be
	// mistaken for a valid short or long pulse
	period := uint16(0xFFFF)
	if delta < 0xFFFF {
		period = uint16(delta)
	}

	// a rising edge terminates a low pulse; decisions are only made on the
	// falling edge, when both halves of the low/high pair are known
	if pinState {
		d.periodLow = period
		return
	}
	d.periodHigh = period

	if d.State() == Idle {
		// pilot search: a pilot sized low pulse followed by a short high
		if d.classify(d.periodLow) == pilotPulse && d.classify(d.periodHigh) == shortPulse {
			d.startFrame()
		}
		return
	}

	var symbol bool
	switch low, high := d.classify(d.periodLow), d.classify(d.periodHigh); {
	case low == shortPulse && high == longPulse:
		symbol = false
	case low == longPulse && high == shortPulse:
		symbol = true
	case low == pilotPulse && high == shortPulse:
		// a fresh pilot in the middle of a frame, either noise or an
		// overlapping transmission; restart at bit 0 without going
		// through Idle
		d.startFrame()
		return
	default:
		d.setState(Idle)
		return
	}

	// bits are transmitted as symbol pairs; park the first symbol and
	// decide on the second
	if !d.halfSymbolRead {
		d.halfSymbolRead = true
		d.lastSymbol = symbol
		return
	}
	d.halfSymbolRead = false

	d.decodeBit(d.lastSymbol, symbol)
}

// startFrame enters Reading at bit 0 with a cleared symbol pairing.
func (d *Decoder) startFrame() {
	d.bitIndex = 0
	d.halfSymbolRead = false
	d.setState(Reading)
}

// decodeBit combines a symbol pair into one frame bit.
func (d *Decoder) decodeBit(first, second bool) {
	if d.bitIndex < syncBits {
		// the sync field accepts nothing but the sync pattern;
		// sync bits are validated and counted, not stored
		if !first && second {
			d.bitIndex++
			return
		}
		d.setState(Idle)
		return
	}

	byteIdx := d.bitIndex >> 3
	mask := byte(1) << (uint(d.bitIndex) & 7)

	switch {
	case !first && !second: // logical '0'
		d.bufferHL[byteIdx] &^= mask
		d.bufferZ[byteIdx] &^= mask
	case first && second: // logical '1'
		d.bufferHL[byteIdx] |= mask
		d.bufferZ[byteIdx] &^= mask
	case first && !second: // logical 'Z'
		d.bufferHL[byteIdx] &^= mask
		d.bufferZ[byteIdx] |= mask
	default:
		// the sync pattern inside the data field is a framing error
		d.setState(Idle)
		return
	}

	d.bitIndex++
	if d.bitIndex >= frameBits {
		d.setState(Done)
	}
}

// Value extracts the 16 usable data bits of the buffered frame.
// Floating bits are mapped to openValue. Only meaningful in Done.
func (d *Decoder) Value(openValue bool) uint16 {
	var result uint16

	for i := 0; i < payloadBits; i++ {
		// skip the sync field
		idx := i + syncBits
		byteIdx := idx >> 3
		mask := byte(1) << (uint(idx) & 7)

		if d.bufferZ[byteIdx]&mask != 0 {
			if openValue {
				result |= 1 << uint(i)
			}
		} else if d.bufferHL[byteIdx]&mask != 0 {
			result |= 1 << uint(i)
		}
	}

	return result
}

// OpenMask extracts the floating state of the 16 usable data bits.
// With openValue true a floating bit reads as 1 and a defined bit as 0,
// with openValue false the mapping is inverted.
func (d *Decoder) OpenMask(openValue bool) uint16 {
	var result uint16

	for i := 0; i < payloadBits; i++ {
		idx := i + syncBits
		byteIdx := idx >> 3
		mask := byte(1) << (uint(idx) & 7)

		isOpen := d.bufferZ[byteIdx]&mask != 0
		if isOpen == openValue {
			result |= 1 << uint(i)
		}
	}

	return result
}

// Tristate renders the 16 usable data bits as a string of '0', '1' and 'Z',
// most significant bit first.
func (d *Decoder) Tristate() string {
	value := d.Value(false)
	open := d.OpenMask(true)

	b := make([]byte, payloadBits)
	for i := 0; i < payloadBits; i++ {
		bit := uint(payloadBits - 1 - i)
		switch {
		case open&(1<<bit) != 0:
			b[i] = 'Z'
		case value&(1<<bit) != 0:
			b[i] = '1'
		default:
			b[i] = '0'
		}
	}

	return string(b)
}
