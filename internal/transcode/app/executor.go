package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Executor run independent transcode operations in parallel and waits for all of them
type Executor struct {
	runner      Runner
	maxParallel int
	timeout     time.Duration
}

// NewExecutor maxParallel <= 0 means no limit
func NewExecutor(runner Runner, maxParallel int, timeout time.Duration) *Executor {
	return &Executor{runner: runner, maxParallel: maxParallel, timeout: timeout}
}

// Execute return one result per rendition in the same order.
// A failed operation never cancels its siblings.
func (e *Executor) Execute(ctx context.Context, renditions []domain.Rendition) []domain.TranscodeResult {
	results := make([]domain.TranscodeResult, len(renditions))

	var g errgroup.Group
	if e.maxParallel > 0 {
		g.SetLimit(e.maxParallel)
	}
	for i, r := range renditions {
		i, r := i, r
		g.Go(func() error {
			results[i] = e.run(ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Executor) run(ctx context.Context, r domain.Rendition) domain.TranscodeResult {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	stderr, err := e.runner.Run(ctx, r.Args)
	if err == nil {
		err = checkOutput(r.LocalPath)
	}
	if err != nil && len(r.FallbackArgs) > 0 && ctx.Err() == nil {
		logger.Log.Warn("轉碼沒有產出，改用備用參數重試",
			zap.String("rendition", string(r.Kind)),
			zap.Error(err),
		)
		stderr, err = e.runner.Run(ctx, r.FallbackArgs)
		if err == nil {
			err = checkOutput(r.LocalPath)
		}
	}
	result := domain.TranscodeResult{
		Kind:     r.Kind,
		Duration: time.Since(start),
		Stderr:   stderr,
		Err:      err,
	}

	fields := []zap.Field{
		zap.String("rendition", string(r.Kind)),
		zap.Duration("duration", result.Duration),
	}
	if err != nil {
		logger.Log.Warn("轉碼失敗", append(fields, zap.Error(err), zap.String("stderr", stderr))...)
	} else {
		logger.Log.Info("轉碼完成", fields...)
	}
	return result
}

// ffmpeg 有時 exit 0 卻沒有輸出 (例如 -ss 超過影片長度)
func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output not produced: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output [%s] is empty", path)
	}
	return nil
}

// FailedResults filter failed operations
func FailedResults(results []domain.TranscodeResult) []domain.TranscodeResult {
	var failed []domain.TranscodeResult
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
