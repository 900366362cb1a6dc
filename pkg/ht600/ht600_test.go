package ht600

import (
	"reflect"
	"testing"
)

// reference timing: fosc 100 kHz, 1 µs ticks -> T = 330 ticks
const (
	tShort = 330
	tLong  = 2 * tShort
	tPilot = 12000 // well above the derived 8316 tick threshold
)

// edge is one pin transition with its tick timestamp.
type edge struct {
	pinState bool
	ticks    uint32
}

// waveform builds an edge sequence for the decoder. The line idles low, so
// every pulse is a low period terminated by a rising edge followed by a high
// period terminated by a falling edge.
type waveform struct {
	t     uint32
	edges []edge
}

func (w *waveform) pulse(low, high uint32) {
	w.t += low
	w.edges = append(w.edges, edge{true, w.t})
	w.t += high
	w.edges = append(w.edges, edge{false, w.t})
}

func (w *waveform) symbol(s bool) {
	if s {
		w.pulse(tLong, tShort)
	} else {
		w.pulse(tShort, tLong)
	}
}

func (w *waveform) pilot() {
	w.pulse(tPilot, tShort)
}

func (w *waveform) sync() {
	w.symbol(false)
	w.symbol(true)
}

func (w *waveform) bit(first, second bool) {
	w.symbol(first)
	w.symbol(second)
}

// frame appends a complete transmission: pilot, sync field and 18 data bits.
// Bits set in open are transmitted floating, the two trailing dummy bits are
// always transmitted floating so a leak into the extracted 16 bits would be
// visible.
func (w *waveform) frame(value, open uint16) {
	w.pilot()
	w.sync()
	w.sync()

	for i := 0; i < 16; i++ {
		switch {
		case open&(1<<uint(i)) != 0:
			w.bit(true, false) // Z
		case value&(1<<uint(i)) != 0:
			w.bit(true, true) // 1
		default:
			w.bit(false, false) // 0
		}
	}

	w.bit(true, false)
	w.bit(true, false)
}

func feed(d *Decoder, edges []edge) {
	for _, e := range edges {
		d.ProcessEvent(e.pinState, e.ticks)
	}
}

func newTestDecoder() *Decoder {
	return New(Fosc330K, DefaultTolerance, 1, 50)
}

func TestThresholdDerivation(t *testing.T) {
	d := newTestDecoder()

	if d.shortTickMin != 231 || d.shortTickMax != 429 {
		t.Errorf("short range = [%d,%d], want [231,429]", d.shortTickMin, d.shortTickMax)
	}
	if d.longTickMin != 462 || d.longTickMax != 858 {
		t.Errorf("long range = [%d,%d], want [462,858]", d.longTickMin, d.longTickMax)
	}
	if d.pilotTickMin != 8316 {
		t.Errorf("pilotTickMin = %d, want 8316", d.pilotTickMin)
	}
	if d.noiseFilterTick != 50 {
		t.Errorf("noiseFilterTick = %d, want 50", d.noiseFilterTick)
	}
}

func TestClassify(t *testing.T) {
	d := newTestDecoder()

	tests := []struct {
		ticks uint16
		want  pulseClass
	}{
		{230, unclassified},
		{231, shortPulse},
		{330, shortPulse},
		{429, shortPulse},
		{430, unclassified},
		{461, unclassified},
		{462, longPulse},
		{660, longPulse},
		{858, longPulse},
		{859, unclassified},
		{8316, unclassified}, // pilot threshold is strictly greater than
		{8317, pilotPulse},
		{0xFFFF, pilotPulse},
	}

	for _, tc := range tests {
		if got := d.classify(tc.ticks); got != tc.want {
			t.Errorf("classify(%d) = %v, want %v", tc.ticks, got, tc.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		value uint16
		open  uint16
	}{
		{0x0000, 0x0000},
		{0xFFFF, 0x0000},
		{0x0000, 0xFFFF},
		{0xA5C3, 0x0000},
		{0xA5C3, 0x0F0F},
		{0x0001, 0x8000},
		{0x8000, 0x0001},
	}

	for _, tc := range tests {
		var w waveform
		w.frame(tc.value, tc.open)

		d := newTestDecoder()
		feed(d, w.edges)

		if !d.Available() {
			t.Errorf("value %04x open %04x: frame not available, state %v", tc.value, tc.open, d.State())
			continue
		}

		// on non-floating bits both mappings must agree with the value
		if got, want := d.Value(false), tc.value&^tc.open; got != want {
			t.Errorf("value %04x open %04x: Value(false) = %04x, want %04x", tc.value, tc.open, got, want)
		}
		if got, want := d.Value(true), tc.value&^tc.open|tc.open; got != want {
			t.Errorf("value %04x open %04x: Value(true) = %04x, want %04x", tc.value, tc.open, got, want)
		}
		if got := d.OpenMask(true); got != tc.open {
			t.Errorf("value %04x open %04x: OpenMask(true) = %04x", tc.value, tc.open, got)
		}
		if got := d.OpenMask(false); got != ^tc.open {
			t.Errorf("value %04x open %04x: OpenMask(false) = %04x", tc.value, tc.open, got)
		}
	}
}

func TestTristate(t *testing.T) {
	var w waveform
	w.frame(0x8001, 0x0002)

	d := newTestDecoder()
	feed(d, w.edges)

	if got, want := d.Tristate(), "10000000000000Z1"; got != want {
		t.Errorf("Tristate() = %q, want %q", got, want)
	}
}

func TestPilotAcceptance(t *testing.T) {
	d := newTestDecoder()

	var w waveform
	w.pilot()
	feed(d, w.edges)

	if d.State() != Reading {
		t.Fatalf("state after pilot = %v, want %v", d.State(), Reading)
	}
}

func TestIdleIgnoresNonPilot(t *testing.T) {
	d := newTestDecoder()

	// plausible data timing without a preceding pilot must not start a frame
	var w waveform
	w.symbol(false)
	w.symbol(true)
	w.pulse(1000, 330)
	w.pulse(tPilot, tLong) // pilot low but high is not short
	feed(d, w.edges)

	if d.State() != Idle {
		t.Fatalf("state = %v, want %v", d.State(), Idle)
	}
}

func TestGlitchImmunity(t *testing.T) {
	var w waveform
	w.frame(0x55AA, 0x00F0)

	// after every genuine edge, inject a glitch pair well below the noise
	// filter threshold
	d := newTestDecoder()
	for _, e := range w.edges {
		d.ProcessEvent(e.pinState, e.ticks)
		d.ProcessEvent(!e.pinState, e.ticks+10)
		d.ProcessEvent(e.pinState, e.ticks+20)
	}

	if !d.Available() {
		t.Fatalf("glitched frame not decoded, state %v", d.State())
	}
	if got := d.Value(false); got != 0x55AA&^0x00F0 {
		t.Errorf("Value(false) = %04x, want %04x", got, 0x55AA&^uint16(0x00F0))
	}
	if got := d.OpenMask(true); got != 0x00F0 {
		t.Errorf("OpenMask(true) = %04x, want 00f0", got)
	}
}

func TestGlitchKeepsBitIndex(t *testing.T) {
	var w waveform
	w.pilot()
	w.sync()

	d := newTestDecoder()
	feed(d, w.edges)

	if d.State() != Reading || d.bitIndex != 1 {
		t.Fatalf("state %v bitIndex %d, want reading/1", d.State(), d.bitIndex)
	}

	// a burst of sub-threshold edges must leave framing untouched
	for i := uint32(1); i <= 4; i++ {
		d.ProcessEvent(i%2 == 0, w.t+i*10)
	}

	if d.State() != Reading || d.bitIndex != 1 {
		t.Errorf("state %v bitIndex %d after glitches, want reading/1", d.State(), d.bitIndex)
	}
}

func TestMidStreamPilotResync(t *testing.T) {
	var w waveform
	w.pilot()
	w.sync()
	w.sync()
	w.bit(true, true)
	w.bit(false, false)

	// a new transmission starts before the first one completes
	w.frame(0xBEEF, 0x0000)

	d := newTestDecoder()
	feed(d, w.edges)

	if !d.Available() {
		t.Fatalf("frame after resync not decoded, state %v", d.State())
	}
	if got := d.Value(false); got != 0xBEEF {
		t.Errorf("Value(false) = %04x, want beef", got)
	}
}

func TestResyncDoesNotPassIdle(t *testing.T) {
	var w waveform
	w.pilot()
	w.sync()
	w.sync()
	w.bit(true, true)

	d := newTestDecoder()
	feed(d, w.edges)

	if d.State() != Reading {
		t.Fatalf("state = %v, want %v", d.State(), Reading)
	}

	var p waveform
	p.t = w.t
	p.pilot()
	feed(d, p.edges)

	if d.State() != Reading {
		t.Errorf("state after mid-stream pilot = %v, want %v", d.State(), Reading)
	}
	if d.bitIndex != 0 {
		t.Errorf("bitIndex after mid-stream pilot = %d, want 0", d.bitIndex)
	}
}

func TestHalfSymbolPairing(t *testing.T) {
	var w waveform
	w.pilot()
	w.symbol(false) // first half of the first sync bit

	d := newTestDecoder()
	feed(d, w.edges)

	// no bit decision on the first symbol of a pair
	if d.bitIndex != 0 || !d.halfSymbolRead {
		t.Fatalf("bitIndex %d halfSymbolRead %v after one symbol, want 0/true", d.bitIndex, d.halfSymbolRead)
	}

	var p waveform
	p.t = w.t
	p.symbol(true)
	feed(d, p.edges)

	if d.bitIndex != 1 || d.halfSymbolRead {
		t.Errorf("bitIndex %d halfSymbolRead %v after symbol pair, want 1/false", d.bitIndex, d.halfSymbolRead)
	}
}

func TestMalformedSyncRejection(t *testing.T) {
	pairs := []struct {
		name          string
		first, second bool
	}{
		{"00", false, false},
		{"11", true, true},
		{"10", true, false},
	}

	for _, tc := range pairs {
		var w waveform
		w.pilot()
		w.bit(tc.first, tc.second)

		d := newTestDecoder()
		feed(d, w.edges)

		if d.State() != Idle {
			t.Errorf("pair %s at sync position: state = %v, want %v", tc.name, d.State(), Idle)
		}
	}
}

func TestSyncPatternIllegalInPayload(t *testing.T) {
	var w waveform
	w.pilot()
	w.sync()
	w.sync()
	w.bit(false, false)
	w.bit(false, true) // sync pattern at bit index 3

	d := newTestDecoder()
	feed(d, w.edges)

	if d.State() != Idle {
		t.Errorf("state = %v, want %v", d.State(), Idle)
	}
}

func TestUnclassifiableTimingDropsFrame(t *testing.T) {
	var w waveform
	w.pilot()
	w.sync()
	w.pulse(1000, tShort) // between long max and pilot threshold

	d := newTestDecoder()
	feed(d, w.edges)

	if d.State() != Idle {
		t.Errorf("state = %v, want %v", d.State(), Idle)
	}
}

func TestResetIdempotent(t *testing.T) {
	// reset from Done
	var w waveform
	w.frame(0x1234, 0x00C0)

	d := newTestDecoder()
	feed(d, w.edges)
	if !d.Available() {
		t.Fatalf("frame not decoded, state %v", d.State())
	}

	d.Reset()
	if !reflect.DeepEqual(d, newTestDecoder()) {
		t.Errorf("decoder after Reset differs from a fresh one: %+v", d)
	}

	// reset mid frame
	var p waveform
	p.pilot()
	p.sync()
	feed(d, p.edges)
	d.Reset()
	if !reflect.DeepEqual(d, newTestDecoder()) {
		t.Errorf("decoder after mid-frame Reset differs from a fresh one: %+v", d)
	}
}

func TestFreezeInDone(t *testing.T) {
	var w waveform
	w.frame(0xCAFE, 0x0300)

	d := newTestDecoder()
	feed(d, w.edges)
	if !d.Available() {
		t.Fatalf("frame not decoded, state %v", d.State())
	}

	value := d.Value(false)
	open := d.OpenMask(true)

	// a second, different frame plus assorted garbage must bounce off
	var p waveform
	p.t = w.t
	p.frame(0x0001, 0x0000)
	p.pulse(123, 45678)
	feed(d, p.edges)

	if d.State() != Done {
		t.Fatalf("state = %v, want %v", d.State(), Done)
	}
	if got := d.Value(false); got != value {
		t.Errorf("Value(false) changed in Done: %04x -> %04x", value, got)
	}
	if got := d.OpenMask(true); got != open {
		t.Errorf("OpenMask(true) changed in Done: %04x -> %04x", open, got)
	}

	// after Reset the next frame is accepted again
	d.Reset()
	var n waveform
	n.frame(0x0001, 0x0000)
	feed(d, n.edges)

	if !d.Available() || d.Value(false) != 0x0001 {
		t.Errorf("frame after Reset not decoded, state %v value %04x", d.State(), d.Value(false))
	}
}

func TestDurationSaturates(t *testing.T) {
	d := newTestDecoder()

	// a low period far beyond 16 bits must saturate and classify as pilot,
	// not wrap around into the short/long ranges
	d.ProcessEvent(false, 0)
	d.ProcessEvent(true, 0x20000+tShort) // low duration wraps to tShort if truncated
	d.ProcessEvent(false, 0x20000+2*tShort)

	if d.State() != Reading {
		t.Errorf("state = %v, want %v (saturated low must count as pilot)", d.State(), Reading)
	}
}

func TestTickWrapTolerated(t *testing.T) {
	const start = uint32(0xFFFFF000) // timestamps wrap around zero inside the frame

	var w waveform
	w.t = start
	w.frame(0x4242, 0x0000)

	d := newTestDecoder()
	d.lastEdgeTick = start
	feed(d, w.edges)

	if !d.Available() || d.Value(false) != 0x4242 {
		t.Errorf("frame across tick wrap not decoded, state %v value %04x", d.State(), d.Value(false))
	}
}
