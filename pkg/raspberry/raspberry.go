// Package raspberry watches a gpio line and turns its level changes into
// timestamped edge events.
package raspberry

import (
	"fmt"

	"github.com/warthog618/gpiod"
	"github.com/womat/debug"

	"htrx/pkg/port"
)

var ErrInvalidParam = fmt.Errorf("invalid parameters")

// eventBuffer is the capacity of the edge event channel. RF frames arrive in
// bursts of some 80 edges; buffering keeps the kernel event handler from
// blocking on a slow consumer.
const eventBuffer = 128

// Chip represents a single GPIO chip that controls a set of lines.
type Chip struct {
	gpiodChip *gpiod.Chip
}

// Line represents a single requested line.
type Line struct {
	gpiodLine *gpiod.Line
	// C carries the edge events of the line
	C chan port.Event
}

// Open opens the GPIO character device.
func Open() (*Chip, error) {
	c, err := gpiod.NewChip("gpiochip0")
	chip := Chip{gpiodChip: c}
	return &chip, err
}

// NewLine requests control of a single line on a chip and watches it for
// edge changes. Every change is forwarded to channel C with the kernel's
// event timestamp; no software debounce is applied, deglitching is the
// decoder's noise filter. There can only be one watcher on the line at
// a time.
func (c *Chip) NewLine(gpio int, terminator string) (*Line, error) {
	var err error

	line := &Line{
		C: make(chan port.Event, eventBuffer),
	}

	handler := func(evt gpiod.LineEvent) {
		e := port.Event{Timestamp: evt.Timestamp}

		switch evt.Type {
		case gpiod.LineEventRisingEdge:
			e.Type = port.RisingEdge
		case gpiod.LineEventFallingEdge:
			e.Type = port.FallingEdge
		default:
			debug.ErrorLog.Printf("invalid line event type: %v", evt.Type)
			return
		}

		select {
		case line.C <- e:
		default:
			// dropping an edge only costs one frame, the encoder
			// retransmits while the button is held
			debug.ErrorLog.Print("event buffer full, edge dropped")
		}
	}

	switch terminator {
	case "pullup":
		line.gpiodLine, err = c.gpiodChip.RequestLine(gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullUp)
	case "pulldown":
		line.gpiodLine, err = c.gpiodChip.RequestLine(gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput, gpiod.WithPullDown)
	case "none":
		line.gpiodLine, err = c.gpiodChip.RequestLine(gpio, gpiod.WithEventHandler(handler),
			gpiod.WithBothEdges, gpiod.AsInput)
	default:
		return nil, ErrInvalidParam
	}

	return line, err
}

// Close releases the Chip.
//
// It does not release any lines which may be requested - they must be closed
// independently.
func (c *Chip) Close() error {
	return c.gpiodChip.Close()
}

// Close releases all resources held by the requested line.
//
// Note that this includes waiting for any running event handler to return.
// As a consequence the Close must not be called from the context of the event
// handler - the Close should be called from a different goroutine.
func (l *Line) Close() error {
	if err := l.gpiodLine.Close(); err != nil {
		return err
	}
	close(l.C)
	return nil
}
