package app

import (
	"encoding/json"
	"time"

	"github.com/womat/debug"

	"htrx/pkg/mqtt"
	"htrx/pkg/scanner"
)

// ledFlashTime is how long the status led stays on per received code.
const ledFlashTime = 100 * time.Millisecond

// readCodes waits in an endless loop for decoded codes.
// Each code is stored in the app main structure and sent to the mqtt broker.
func (app *App) readCodes() {
	for code := range app.scanner.C {
		debug.InfoLog.Printf("received code %s", code.Tristate)

		app.lastCode.Lock()
		app.lastCode.data = code
		app.lastCode.Unlock()

		if app.led != nil {
			app.led.Flash(ledFlashTime)
		}

		app.sendMQTT(app.config.MQTT.Topic, code)
	}
}

// sendMQTT sends the code to the mqtt broker.
func (app *App) sendMQTT(topic string, code scanner.Code) {
	go func(t string, c scanner.Code) {
		debug.TraceLog.Printf("prepare mqtt message %v %v", t, c)

		b, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			debug.ErrorLog.Printf("sendMQTT marshal: %v", err)
			return
		}

		app.mqtt.C <- mqtt.Message{
			Qos:      0,
			Retained: true,
			Topic:    t,
			Payload:  b,
		}
	}(topic, code)
}
