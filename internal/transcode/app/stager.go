package app

import (
	"context"
	"path/filepath"
	"time"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/pkg/database"
)

// Stager download the raw upload into the job workspace
type Stager struct {
	raw     database.MinIOClientRepo
	timeout time.Duration
}

// NewStager create Stager reading from the raw-uploads bucket
func NewStager(raw database.MinIOClientRepo, timeout time.Duration) *Stager {
	return &Stager{raw: raw, timeout: timeout}
}

// Stage return the local source path inside ws.RawDir
func (s *Stager) Stage(ctx context.Context, ws *Workspace, video *domain.Video) (string, error) {
	localPath := filepath.Join(ws.RawDir, localSourceName(video.FileName))

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.raw.DownloadFile(ctx, video.SourceKey(), localPath); err != nil {
		return "", domain.NewStageError(domain.StageStaging, video.ID.String(), err)
	}
	return localPath, nil
}

// localSourceName keep only the base name so a stored file name cannot escape RawDir
func localSourceName(fileName string) string {
	base := filepath.Base(filepath.Clean("/" + fileName))
	switch base {
	case "", ".", "..", string(filepath.Separator):
		return "source"
	}
	return base
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
