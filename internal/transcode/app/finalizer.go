package app

import (
	"context"
	"fmt"
	"time"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/internal/transcode/repository"
	"video_processor_worker/pkg/logger"

	"go.uber.org/zap"
)

// Finalizer write the terminal status of a job
type Finalizer struct {
	repo    repository.VideoRepo
	timeout time.Duration
}

// NewFinalizer create Finalizer
func NewFinalizer(repo repository.VideoRepo, timeout time.Duration) *Finalizer {
	return &Finalizer{repo: repo, timeout: timeout}
}

// Finalize jobErr == nil: processed + urls in one update, otherwise failed.
// When the processed update fails the record is marked failed instead;
// when even that fails it is left untouched and the error is logged.
func (f *Finalizer) Finalize(ctx context.Context, video *domain.Video, urls domain.RenditionURLs, jobErr error) error {
	videoID := video.ID.String()

	if jobErr == nil {
		if !urls.Complete() {
			jobErr = fmt.Errorf("rendition set incomplete: %+v", urls)
		} else if err := f.markProcessed(ctx, video, urls); err != nil {
			jobErr = err
		} else {
			return nil
		}
		finalizeErr := domain.NewStageError(domain.StageFinalize, videoID, jobErr)
		if err := f.markFailed(ctx, video); err != nil {
			logger.Log.Error("更新影片狀態為 failed 失敗", zap.String("video_id", videoID), zap.Error(err))
		}
		return finalizeErr
	}

	if err := f.markFailed(ctx, video); err != nil {
		logger.Log.Error("更新影片狀態為 failed 失敗，保留原狀態",
			zap.String("video_id", videoID),
			zap.String("stage", string(domain.FailedStage(jobErr))),
			zap.Error(err),
		)
		return domain.NewStageError(domain.StageFinalize, videoID, err)
	}
	return nil
}

func (f *Finalizer) markProcessed(ctx context.Context, video *domain.Video, urls domain.RenditionURLs) error {
	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()
	return f.repo.MarkProcessed(ctx, video.ID, urls)
}

func (f *Finalizer) markFailed(ctx context.Context, video *domain.Video) error {
	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()
	return f.repo.MarkFailed(ctx, video.ID)
}
