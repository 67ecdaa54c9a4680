package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/internal/transcode/repository"
	"video_processor_worker/pkg/database"
	"video_processor_worker/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkerStatus consumer state exposed to the admin api
type WorkerStatus interface {
	Running() bool
	InFlight() int64
}

// AdminHandler worker 管理 API
type AdminHandler struct {
	VideoRepo     repository.VideoRepo
	AttemptRepo   repository.AttemptRepo // nil 表示未啟用 audit
	ReportRepo    repository.ReportRepo  // nil 表示未啟用 mongo 診斷紀錄
	Processed     database.MinIOClientRepo
	Worker        WorkerStatus
	PresignExpiry time.Duration
}

// VideoRes video status response
type VideoRes struct {
	VideoID      string             `json:"videoId"`
	UserID       string             `json:"userId"`
	Status       domain.VideoStatus `json:"status"`
	ThumbnailURL *string            `json:"thumbnailUrl,omitempty"`
	Video480pURL *string            `json:"video480pUrl,omitempty"`
	Video720pURL *string            `json:"video720pUrl,omitempty"`
	Presigned    map[string]string  `json:"presigned,omitempty"`
}

// Healthz godoc
// @Summary worker health
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /healthz [get]
func (h *AdminHandler) Healthz(c *fiber.Ctx) error {
	if !h.Worker.Running() {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "consumer stopped"})
	}
	return c.JSON(fiber.Map{"status": "ok", "inFlight": h.Worker.InFlight()})
}

// Stats godoc
// @Summary video status counts and in-flight jobs
// @Success 200 {object} map[string]interface{}
// @Router /stats [get]
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.VideoRepo.CountByStatus(c.UserContext())
	if err != nil {
		logger.Log.Error("統計影片狀態失敗", zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "count videos failed"})
	}
	return c.JSON(fiber.Map{
		"videos":   counts,
		"inFlight": h.Worker.InFlight(),
		"running":  h.Worker.Running(),
	})
}

// GetVideo godoc
// @Summary video status with presigned rendition urls
// @Param id path string true "Video ID"
// @Success 200 {object} VideoRes
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /videos/{id} [get]
func (h *AdminHandler) GetVideo(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid video id"})
	}

	video, err := h.VideoRepo.GetByID(c.UserContext(), id)
	if errors.Is(err, domain.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "video not found"})
	}
	if err != nil {
		logger.Log.Error("讀取影片失敗", zap.String("video_id", id.String()), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "get video failed"})
	}

	res := VideoRes{
		VideoID:      video.ID.String(),
		UserID:       video.UserID,
		Status:       video.Status,
		ThumbnailURL: video.ThumbnailURL,
		Video480pURL: video.Video480pURL,
		Video720pURL: video.Video720pURL,
	}
	if video.Status == domain.VideoProcessed {
		res.Presigned = h.presign(c, video)
	}
	return c.JSON(res)
}

func (h *AdminHandler) presign(c *fiber.Ctx, video *domain.Video) map[string]string {
	keys := map[string]*string{
		string(domain.RenditionThumbnail): video.ThumbnailURL,
		string(domain.Rendition480p):      video.Video480pURL,
		string(domain.Rendition720p):      video.Video720pURL,
	}
	presigned := make(map[string]string, len(keys))
	for kind, key := range keys {
		if key == nil || *key == "" {
			continue
		}
		u, err := h.Processed.PresignGetURL(c.UserContext(), *key, h.PresignExpiry)
		if err != nil {
			logger.Log.Warn("生成 presigned url 失敗", zap.String("key", *key), zap.Error(err))
			continue
		}
		presigned[kind] = u
	}
	return presigned
}

// GetAttempts godoc
// @Summary recent transcode attempts of a video
// @Param id path string true "Video ID"
// @Param limit query int false "max rows (default 10)"
// @Success 200 {array} domain.JobReport
// @Router /videos/{id}/attempts [get]
func (h *AdminHandler) GetAttempts(c *fiber.Ctx) error {
	if h.AttemptRepo == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "attempt audit disabled"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid video id"})
	}
	limit, err := strconv.Atoi(c.Query("limit", "10"))
	if err != nil || limit <= 0 || limit > 100 {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "limit must be 1..100"})
	}

	reports, err := h.AttemptRepo.ListByVideo(c.UserContext(), id, limit)
	if err != nil {
		logger.Log.Error("讀取轉碼紀錄失敗", zap.String("video_id", id.String()), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "list attempts failed"})
	}
	if reports == nil {
		reports = []domain.JobReport{}
	}
	return c.JSON(reports)
}

// DiagnosticsRes latest report with ffmpeg stderr tails
type DiagnosticsRes struct {
	domain.JobReport
	Stderr map[domain.RenditionKind]string `json:"stderr,omitempty"`
}

// GetDiagnostics godoc
// @Summary latest transcode diagnostics of a video (mongo)
// @Param id path string true "Video ID"
// @Success 200 {object} DiagnosticsRes
// @Router /videos/{id}/diagnostics [get]
func (h *AdminHandler) GetDiagnostics(c *fiber.Ctx) error {
	if h.ReportRepo == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "diagnostics disabled"})
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid video id"})
	}

	report, err := h.ReportRepo.Latest(c.UserContext(), id.String())
	if errors.Is(err, domain.ErrNotFound) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "no diagnostics for video"})
	}
	if err != nil {
		logger.Log.Error("讀取診斷紀錄失敗", zap.String("video_id", id.String()), zap.Error(err))
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "get diagnostics failed"})
	}

	res := DiagnosticsRes{JobReport: *report}
	for _, r := range report.Renditions {
		if r.Stderr == "" {
			continue
		}
		if res.Stderr == nil {
			res.Stderr = map[domain.RenditionKind]string{}
		}
		res.Stderr[r.Kind] = r.Stderr
	}
	return c.JSON(res)
}
