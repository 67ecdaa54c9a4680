package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/internal/transcode/repository"
	"video_processor_worker/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobProcessor process one job to a terminal state
type JobProcessor interface {
	Process(ctx context.Context, videoID uuid.UUID) (*domain.JobReport, error)
}

// PipelineDeps 所有依賴由 main 建立後注入
type PipelineDeps struct {
	Resolver   *Resolver
	Lock       repository.JobLock
	Workspaces *Workspaces
	Stager     *Stager
	Executor   *Executor
	Publisher  *Publisher
	Finalizer  *Finalizer
	Reporter   Reporter

	ThumbnailOffset int
	ReportTimeout   time.Duration
}

// Pipeline Received -> Resolved -> Staged -> Transcoding -> Published -> Finalized
type Pipeline struct {
	resolver   *Resolver
	lock       repository.JobLock
	workspaces *Workspaces
	stager     *Stager
	executor   *Executor
	publisher  *Publisher
	finalizer  *Finalizer
	reporter   Reporter

	thumbnailOffset int
	reportTimeout   time.Duration
	now             func() time.Time
}

// NewPipeline create Pipeline
func NewPipeline(d PipelineDeps) *Pipeline {
	lock := d.Lock
	if lock == nil {
		lock = repository.NewNopJobLock()
	}
	return &Pipeline{
		resolver:        d.Resolver,
		lock:            lock,
		workspaces:      d.Workspaces,
		stager:          d.Stager,
		executor:        d.Executor,
		publisher:       d.Publisher,
		finalizer:       d.Finalizer,
		reporter:        d.Reporter,
		thumbnailOffset: d.ThumbnailOffset,
		reportTimeout:   d.ReportTimeout,
		now:             time.Now,
	}
}

// Process run one job. The returned error is nil only when the video ends
// processed; a nil report means the job was abandoned before any work
// (unknown video, duplicate delivery, lock held elsewhere).
func (p *Pipeline) Process(ctx context.Context, videoID uuid.UUID) (*domain.JobReport, error) {
	id := videoID.String()
	log := logger.Log.With(zap.String("video_id", id))
	report := &domain.JobReport{VideoID: videoID, Status: domain.VideoFailed, StartedAt: p.now()}

	video, err := p.resolver.Resolve(ctx, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("找不到影片，放棄此 job")
			return nil, fmt.Errorf("videoID[%s]: %w", id, err)
		}
		log.Error("讀取影片資料失敗", zap.String("stage", string(domain.StageResolve)), zap.Error(err))
		return nil, err
	}
	report.UserID = video.UserID

	release, err := p.lock.Acquire(ctx, id)
	switch {
	case errors.Is(err, domain.ErrJobLocked):
		log.Warn("同一支影片正在其他 delivery 處理中")
		return nil, fmt.Errorf("videoID[%s]: %w", id, err)
	case err != nil:
		log.Warn("取得 job lock 失敗，不加鎖繼續", zap.Error(err))
	default:
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("釋放 job lock 失敗", zap.Error(err))
			}
		}()
	}

	if err := p.resolver.MarkProcessing(ctx, videoID); err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) || errors.Is(err, domain.ErrNotFound) {
			log.Info("影片不需處理", zap.Error(err))
			return nil, fmt.Errorf("videoID[%s]: %w", id, err)
		}
		return p.finish(ctx, log, video, report, err)
	}

	jobErr := p.workspaces.With(id, func(ws *Workspace) error {
		return p.run(ctx, log, ws, video, report)
	})
	if jobErr != nil && domain.FailedStage(jobErr) == "" {
		// workspace 建立失敗
		jobErr = domain.NewStageError(domain.StageStaging, id, jobErr)
	}
	return p.finish(ctx, log, video, report, jobErr)
}

func (p *Pipeline) run(ctx context.Context, log *logger.LogInfo, ws *Workspace, video *domain.Video, report *domain.JobReport) (err error) {
	id := video.ID.String()
	stage := domain.StageStaging
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewStageError(stage, id, fmt.Errorf("panic: %v", r))
		}
	}()

	source, err := p.stager.Stage(ctx, ws, video)
	if err != nil {
		return err
	}
	log.Info("原始影片下載完成", zap.String("path", source))

	stage = domain.StageTranscode
	renditions := BuildRenditions(video, source, ws.OutputDir, p.thumbnailOffset)
	results := p.executor.Execute(ctx, renditions)
	report.Renditions = renditionReports(renditions, results)
	if failed := FailedResults(results); len(failed) > 0 {
		return transcodeError(id, failed)
	}

	stage = domain.StagePublish
	urls, err := p.publisher.Publish(ctx, id, renditions)
	report.URLs = urls
	return err
}

func (p *Pipeline) finish(ctx context.Context, log *logger.LogInfo, video *domain.Video, report *domain.JobReport, jobErr error) (*domain.JobReport, error) {
	// shutdown 時仍要把狀態寫完
	ctx = context.WithoutCancel(ctx)

	finalizeErr := p.finalizer.Finalize(ctx, video, report.URLs, jobErr)
	err := jobErr
	if err == nil {
		err = finalizeErr
	} else if finalizeErr != nil {
		log.Error("finalize 失敗", zap.Error(finalizeErr))
	}

	report.FinishedAt = p.now()
	if err == nil {
		report.Status = domain.VideoProcessed
		log.Info("影片處理完成", zap.Duration("duration", report.Duration()))
	} else {
		report.Status = domain.VideoFailed
		report.FailedStage = domain.FailedStage(err)
		report.Error = err.Error()
		log.Error("影片處理失敗",
			zap.String("stage", string(report.FailedStage)),
			zap.Duration("duration", report.Duration()),
			zap.Error(err),
		)
	}

	if p.reporter != nil {
		rctx, cancel := withTimeout(ctx, p.reportTimeout)
		if rerr := p.reporter.Report(rctx, report); rerr != nil {
			log.Warn("回報 job 結果失敗", zap.Error(rerr))
		}
		cancel()
	}
	return report, err
}

func renditionReports(renditions []domain.Rendition, results []domain.TranscodeResult) []domain.RenditionReport {
	reports := make([]domain.RenditionReport, len(results))
	for i, res := range results {
		reports[i] = domain.RenditionReport{
			Kind:       res.Kind,
			RemoteKey:  renditions[i].RemoteKey,
			DurationMs: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			reports[i].Error = res.Err.Error()
			reports[i].Stderr = res.Stderr
		}
	}
	return reports
}

func transcodeError(videoID string, failed []domain.TranscodeResult) error {
	errs := make([]error, 0, len(failed))
	for _, f := range failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Kind, f.Err))
	}
	se := domain.NewStageError(domain.StageTranscode, videoID, errors.Join(errs...))
	if len(failed) == 1 {
		se.Rendition = failed[0].Kind
	}
	return se
}
