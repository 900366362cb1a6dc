package ht600

// Oscillator frequency in kHz by Rosc value at 12V supply, taken from the
// HT680 datasheet. The higher the frequency, the more sensitive the timing
// is to the supply voltage; 330K (100 kHz) is the reference value the
// datasheet recommends.
const (
	Fosc120K uint = 265
	Fosc150K uint = 215
	Fosc180K uint = 180
	Fosc220K uint = 150
	Fosc270K uint = 120
	Fosc330K uint = 100
	Fosc390K uint = 85
	Fosc470K uint = 70
	Fosc560K uint = 60
	Fosc680K uint = 50
	Fosc820K uint = 40
	Fosc1M0  uint = 33
	Fosc1M5  uint = 22
	Fosc2M0  uint = 16
)

// DefaultTolerance is a good compromise between noise immunity and
// rejection of poorly tuned transmitters.
const DefaultTolerance = 0.3
