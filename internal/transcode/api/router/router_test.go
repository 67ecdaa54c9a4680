package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"video_processor_worker/internal/transcode/api/handlers"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idleWorker struct{}

func (idleWorker) Running() bool   { return true }
func (idleWorker) InFlight() int64 { return 0 }

func TestRegisterRoutes(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, &handlers.AdminHandler{Worker: idleWorker{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/videos/bad-id", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
