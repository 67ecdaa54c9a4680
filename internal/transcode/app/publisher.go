package app

import (
	"context"
	"time"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/pkg/database"
	"video_processor_worker/pkg/logger"

	"go.uber.org/zap"
)

// Publisher upload renditions to the processed-videos bucket
type Publisher struct {
	processed database.MinIOClientRepo
	timeout   time.Duration
}

// NewPublisher create Publisher
func NewPublisher(processed database.MinIOClientRepo, timeout time.Duration) *Publisher {
	return &Publisher{processed: processed, timeout: timeout}
}

// Publish 依序上傳，第一個失敗就停止；已上傳的保留，key 固定所以重試會覆蓋
func (p *Publisher) Publish(ctx context.Context, videoID string, renditions []domain.Rendition) (domain.RenditionURLs, error) {
	var urls domain.RenditionURLs
	for _, r := range renditions {
		if err := p.upload(ctx, r); err != nil {
			return urls, &domain.StageError{
				Stage:     domain.StagePublish,
				VideoID:   videoID,
				Rendition: r.Kind,
				Err:       err,
			}
		}
		urls.Set(r.Kind, r.RemoteKey)
		logger.Log.Info("上傳轉碼結果",
			zap.String("video_id", videoID),
			zap.String("rendition", string(r.Kind)),
			zap.String("bucket", p.processed.Bucket()),
			zap.String("key", r.RemoteKey),
		)
	}
	return urls, nil
}

func (p *Publisher) upload(ctx context.Context, r domain.Rendition) error {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()
	return p.processed.UploadFile(ctx, r.RemoteKey, r.LocalPath, r.ContentType)
}
