package app

import (
	"context"
	"errors"
	"time"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/internal/transcode/repository"

	"github.com/google/uuid"
)

// Resolver load the video record of a job
type Resolver struct {
	repo    repository.VideoRepo
	timeout time.Duration
}

// NewResolver create Resolver
func NewResolver(repo repository.VideoRepo, timeout time.Duration) *Resolver {
	return &Resolver{repo: repo, timeout: timeout}
}

// Resolve return domain.ErrNotFound for unknown ids, no side effects
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID) (*domain.Video, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	video, err := r.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, domain.NewStageError(domain.StageResolve, id.String(), err)
	}
	return video, nil
}

// MarkProcessing move the record into processing before any work starts
func (r *Resolver) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	err := r.repo.MarkProcessing(ctx, id)
	if err == nil || errors.Is(err, domain.ErrAlreadyProcessed) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return domain.NewStageError(domain.StageResolve, id.String(), err)
}
