package domain

import (
	"time"

	"github.com/google/uuid"
)

// RenditionReport per rendition diagnostics
type RenditionReport struct {
	Kind       RenditionKind `json:"kind" bson:"kind"`
	RemoteKey  string        `json:"remoteKey,omitempty" bson:"remote_key,omitempty"`
	DurationMs int64         `json:"durationMs" bson:"duration_ms"`
	Error      string        `json:"error,omitempty" bson:"error,omitempty"`
	Stderr     string        `json:"-" bson:"stderr,omitempty"`
}

// JobReport 單一 job 的結果，交給 reporter 保存或發送
type JobReport struct {
	VideoID     uuid.UUID         `json:"videoId" bson:"video_id"`
	UserID      string            `json:"userId" bson:"user_id"`
	Status      VideoStatus       `json:"status" bson:"status"`
	FailedStage Stage             `json:"failedStage,omitempty" bson:"failed_stage,omitempty"`
	Error       string            `json:"error,omitempty" bson:"error,omitempty"`
	URLs        RenditionURLs     `json:"urls" bson:"urls"`
	Renditions  []RenditionReport `json:"renditions" bson:"renditions"`
	StartedAt   time.Time         `json:"startedAt" bson:"started_at"`
	FinishedAt  time.Time         `json:"finishedAt" bson:"finished_at"`
}

// Duration wall clock time of the job
func (r *JobReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
