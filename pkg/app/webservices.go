package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandleData serves the most recently decoded code.
func (app *App) HandleData() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request data")

		app.lastCode.RLock()
		code := app.lastCode.data
		app.lastCode.RUnlock()

		if code.Time.IsZero() {
			// nothing received yet
			return ctx.SendStatus(fiber.StatusNoContent)
		}

		return ctx.JSON(code)
	}
}
