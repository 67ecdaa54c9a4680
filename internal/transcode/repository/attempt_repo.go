package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"video_processor_worker/internal/transcode/domain"
	errprocess "video_processor_worker/pkg/err"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AttemptRepo transcode_attempt audit table, one row per finished job
type AttemptRepo interface {
	EnsureSchema(ctx context.Context) error
	Record(ctx context.Context, report *domain.JobReport) error
	ListByVideo(ctx context.Context, videoID uuid.UUID, limit int) ([]domain.JobReport, error)
}

type attemptRepo struct {
	db *pgxpool.Pool
}

// NewAttemptRepo create AttemptRepo
func NewAttemptRepo(db *pgxpool.Pool) AttemptRepo {
	return &attemptRepo{db: db}
}

const createAttemptTable = `
CREATE TABLE IF NOT EXISTS transcode_attempt (
	id           BIGSERIAL PRIMARY KEY,
	video_id     UUID        NOT NULL,
	user_id      TEXT        NOT NULL DEFAULT '',
	status       TEXT        NOT NULL,
	failed_stage TEXT        NOT NULL DEFAULT '',
	error        TEXT        NOT NULL DEFAULT '',
	renditions   JSONB       NOT NULL DEFAULT '[]',
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transcode_attempt_video_idx ON transcode_attempt (video_id, finished_at DESC);`

func (r *attemptRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createAttemptTable); err != nil {
		return errprocess.Wrap(err, "建立 transcode_attempt 資料表失敗")
	}
	return nil
}

func (r *attemptRepo) Record(ctx context.Context, report *domain.JobReport) error {
	renditions, err := json.Marshal(report.Renditions)
	if err != nil {
		return fmt.Errorf("marshal renditions: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO transcode_attempt (video_id, user_id, status, failed_stage, error, renditions, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
		report.VideoID.String(), report.UserID, string(report.Status), string(report.FailedStage),
		report.Error, string(renditions), report.StartedAt, report.FinishedAt,
	)
	return err
}

func (r *attemptRepo) ListByVideo(ctx context.Context, videoID uuid.UUID, limit int) ([]domain.JobReport, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, status, failed_stage, error, renditions::text, started_at, finished_at
		 FROM transcode_attempt WHERE video_id = $1 ORDER BY finished_at DESC LIMIT $2`,
		videoID.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.JobReport
	for rows.Next() {
		var (
			report     domain.JobReport
			status     string
			stage      string
			renditions string
			started    time.Time
			finished   time.Time
		)
		if err := rows.Scan(&report.UserID, &status, &stage, &report.Error, &renditions, &started, &finished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(renditions), &report.Renditions); err != nil {
			return nil, fmt.Errorf("unmarshal renditions: %w", err)
		}
		report.VideoID = videoID
		report.Status = domain.VideoStatus(status)
		report.FailedStage = domain.Stage(stage)
		report.StartedAt = started
		report.FinishedAt = finished
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
