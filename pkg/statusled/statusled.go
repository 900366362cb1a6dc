// Package statusled drives a receive indicator LED on a gpio output pin.
package statusled

import (
	"sync"
	"time"

	"github.com/warthog618/gpio"
)

// LED is the handler of the indicator pin.
type LED struct {
	pin *gpio.Pin

	mu    sync.Mutex
	timer *time.Timer
}

// Open maps the gpio memory and configures the pin as a low output.
// The pin number is the BCM GPIO number.
func Open(p int) (*LED, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}

	pin := gpio.NewPin(p)
	pin.Output()
	pin.Low()

	return &LED{pin: pin}, nil
}

// Flash switches the LED on for the given duration. Overlapping flashes
// extend the on period instead of flickering.
func (l *LED) Flash(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pin.High()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(d, l.pin.Low)
}

// Close switches the LED off and unmaps the gpio memory.
func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.pin.Low()

	return gpio.Close()
}
