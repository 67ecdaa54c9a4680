package router

import (
	"video_processor_worker/internal/transcode/api/handlers"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes 註冊 worker 管理路由
func RegisterRoutes(app *fiber.App, adminHandler *handlers.AdminHandler) {
	app.Get("/healthz", adminHandler.Healthz)
	app.Get("/stats", adminHandler.Stats)
	app.Get("/videos/:id", adminHandler.GetVideo)
	app.Get("/videos/:id/attempts", adminHandler.GetAttempts)
	app.Get("/videos/:id/diagnostics", adminHandler.GetDiagnostics)
}
