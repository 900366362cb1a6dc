// Package port holds the vocabulary of a physical input line.
package port

import "time"

// EventType indicates the type of change to the line level.
type EventType int

const (
	_ EventType = iota
	// RisingEdge indicates a low to high transition.
	RisingEdge
	// FallingEdge indicates a high to low transition.
	FallingEdge
)

// Event is one observed transition of the line.
type Event struct {
	// Timestamp indicates the time the event was detected.
	// It is monotonic, not wall clock time.
	Timestamp time.Duration
	// Type is the edge direction of this transition.
	Type EventType
}
