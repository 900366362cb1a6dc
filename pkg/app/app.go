// Package app wires the receiver pipeline, the mqtt client and the web api.
package app

import (
	"net/url"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"

	"htrx/pkg/app/config"
	"htrx/pkg/mqtt"
	"htrx/pkg/raspberry"
	"htrx/pkg/scanner"
	"htrx/pkg/statusled"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Webserver.URL parameter
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// chip and line give access to the receiver gpio
	chip *raspberry.Chip
	line *raspberry.Line

	// scanner decodes the edge events of the receiver line
	scanner *scanner.Scanner

	// led is the receive indicator, nil if disabled or unavailable
	led *statusled.LED

	// lastCode is the most recently decoded code, served by /data
	lastCode struct {
		sync.RWMutex
		data scanner.Code
	}
}

// New checks the web server URL and initializes the main app structure.
func New(cfg *config.Config) (*App, error) {
	u, err := url.Parse(cfg.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("error parsing url %q: %s", cfg.Webserver.URL, err.Error())
		return &App{}, err
	}

	return &App{
		config:    cfg,
		urlParsed: u,
		web:       fiber.New(),
		mqtt:      mqtt.New(),
	}, nil
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	go app.runWebServer()
	go app.readCodes()

	return nil
}

// init opens the gpio line, starts the scanner and connects the mqtt broker.
func (app *App) init() (err error) {
	if app.chip, err = raspberry.Open(); err != nil {
		debug.ErrorLog.Printf("can't open gpio chip: %v", err)
		return err
	}

	if app.line, err = app.chip.NewLine(app.config.Gpio, app.config.Terminator); err != nil {
		debug.ErrorLog.Printf("can't open gpio line %v: %v", app.config.Gpio, err)
		return err
	}

	app.scanner = scanner.New(app.line.C, scanner.Config{
		FoscKHz:        uint(app.config.Receiver.FoscKHz),
		Tolerance:      app.config.Receiver.Tolerance,
		NoiseFilter:    app.config.Receiver.NoiseFilter,
		RepeatInterval: app.config.Receiver.RepeatInterval,
	})

	if app.config.StatusLed > 0 {
		// a missing led must not stop the receiver, e.g. when running
		// on a host without gpio memory
		led, ledErr := statusled.Open(app.config.StatusLed)
		if ledErr != nil {
			debug.ErrorLog.Printf("can't open status led on gpio %v, continuing without: %v", app.config.StatusLed, ledErr)
		} else {
			app.led = led
		}
	}

	if err = app.mqtt.Connect(app.config.MQTT.Connection, MODULE); err != nil {
		debug.ErrorLog.Printf("can't connect mqtt broker: %v", err)
		return err
	}

	// initDefaultRoutes should always be called last, it may access
	// handlers initialized above
	app.initDefaultRoutes()

	return nil
}

// Close releases the pipeline in consumer to producer order.
func (app *App) Close() error {
	if app.scanner != nil {
		_ = app.scanner.Close()
	}
	if app.line != nil {
		_ = app.line.Close()
	}
	if app.chip != nil {
		_ = app.chip.Close()
	}
	if app.led != nil {
		_ = app.led.Close()
	}

	return app.mqtt.Disconnect()
}
