package testtool

import (
	"video_processor_worker/pkg/config"
	"video_processor_worker/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"go.uber.org/zap"
)

// StartPprof 非 production 環境才在 addr 上開 pprof
// (/debug/pprof/, /debug/pprof/heap, /debug/pprof/profile?seconds=30 ...)
//
//	go tool pprof http://localhost:6060/debug/pprof/heap
func StartPprof(addr string) *fiber.App {
	if config.IsProduction() || addr == "" {
		logger.Log.Info("pprof is disabled")
		return nil
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(pprof.New())

	go func() {
		logger.Log.Info("Starting pprof server", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Log.Warn("pprof server stopped", zap.Error(err))
		}
	}()
	return app
}
