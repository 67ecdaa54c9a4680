package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/internal/transcode/repository"

	"github.com/segmentio/kafka-go"
)

// Reporter receive the report of every finished job
type Reporter interface {
	Report(ctx context.Context, report *domain.JobReport) error
}

// Reporters fan out to every reporter, one failure does not stop the others
type Reporters []Reporter

// Report implement Reporter
func (rs Reporters) Report(ctx context.Context, report *domain.JobReport) error {
	var errs []error
	for _, r := range rs {
		if err := r.Report(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AttemptReporter write the postgres audit row
type AttemptReporter struct {
	Repo repository.AttemptRepo
}

// Report implement Reporter
func (a AttemptReporter) Report(ctx context.Context, report *domain.JobReport) error {
	if err := a.Repo.Record(ctx, report); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// DiagnosticsReporter keep the ffmpeg stderr tails in mongo
type DiagnosticsReporter struct {
	Repo repository.ReportRepo
}

// Report implement Reporter
func (d DiagnosticsReporter) Report(ctx context.Context, report *domain.JobReport) error {
	if err := d.Repo.Save(ctx, report); err != nil {
		return fmt.Errorf("save diagnostics: %w", err)
	}
	return nil
}

// MessageWriter the part of kafka.Writer used here
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaReporter publish a video.transcoded event keyed by video id
type KafkaReporter struct {
	Writer MessageWriter
}

// Report implement Reporter
func (k KafkaReporter) Report(ctx context.Context, report *domain.JobReport) error {
	value, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	err = k.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(report.VideoID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(report.Status)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish kafka event: %w", err)
	}
	return nil
}
