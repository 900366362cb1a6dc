// Package config loads and derives the application configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config defines the struct of the global config and of the configuration file.
// Integer fields carry the raw file values, the derived typed values live in
// the yaml:"-" fields and are filled by LoadConfig.
type Config struct {
	// Gpio is the BCM number of the receiver data pin.
	Gpio int `yaml:"gpio"`
	// Terminator selects the line bias: pullup, pulldown or none.
	Terminator string `yaml:"terminator"`
	// StatusLed is the BCM number of the receive indicator LED, 0 disables it.
	StatusLed int `yaml:"statusled"`

	Receiver  ReceiverConfig  `yaml:"receiver"`
	Flag      FlagConfig      `yaml:"-"`
	Log       LogConfig       `yaml:"log"`
	Webserver WebserverConfig `yaml:"webserver"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// ReceiverConfig defines the decoder timing parameters.
type ReceiverConfig struct {
	// FoscKHz is the oscillator frequency of the transmitting encoder chip.
	FoscKHz int `yaml:"fosc"`
	// Tolerance is the accepted pulse timing deviation as a fraction.
	Tolerance float64 `yaml:"tolerance"`
	// NoiseFilterInt is the noise filter threshold in µs.
	NoiseFilterInt int           `yaml:"noisefilter"`
	NoiseFilter    time.Duration `yaml:"-"`
	// RepeatIntervalInt is the key repeat suppression window in ms.
	RepeatIntervalInt int           `yaml:"repeatinterval"`
	RepeatInterval    time.Duration `yaml:"-"`
}

// FlagConfig defines the configured command line flags.
type FlagConfig struct {
	ConfigFile string
	LogLevel   string
}

// WebserverConfig defines the struct of the webserver configuration.
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration.
type MQTTConfig struct {
	Connection string `yaml:"connection"`
	Topic      string `yaml:"topic"`
}

// LogConfig defines the struct of the log configuration.
type LogConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

// NewConfig returns the configuration defaults: the datasheet reference
// oscillator (330K resistor, 100 kHz) with 30% tolerance, a 50 µs noise
// filter and a 500 ms key repeat window.
func NewConfig() *Config {
	return &Config{
		Gpio:       27,
		Terminator: "none",
		StatusLed:  0,
		Receiver: ReceiverConfig{
			FoscKHz:           100,
			Tolerance:         0.3,
			NoiseFilterInt:    50,
			RepeatIntervalInt: 500,
		},
		Flag: FlagConfig{},
		Log: LogConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"data":    true,
			},
		},
		MQTT: MQTTConfig{
			Connection: "",
			Topic:      "htrx/code",
		},
	}
}

// LoadConfig reads the configuration file and derives the typed values.
func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	if c.Flag.LogLevel != "" {
		c.Log.FlagString = c.Flag.LogLevel
	}
	if err := c.setLogConfig(); err != nil {
		return fmt.Errorf("unable to open log file %q: %w", c.Log.FileString, err)
	}

	c.Receiver.NoiseFilter = time.Duration(c.Receiver.NoiseFilterInt) * time.Microsecond
	c.Receiver.RepeatInterval = time.Duration(c.Receiver.RepeatIntervalInt) * time.Millisecond

	return nil
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	return yaml.NewDecoder(file).Decode(c)
}

func (c *Config) setLogConfig() (err error) {
	switch c.Log.FlagString {
	case "trace", "full":
		c.Log.Flag = debug.Full
	case "debug":
		c.Log.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Log.Flag = debug.Standard
	}

	switch c.Log.FileString {
	case "stderr":
		c.Log.File = os.Stderr
	case "stdout":
		c.Log.File = os.Stdout
	default:
		if c.Log.File, err = os.OpenFile(c.Log.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
