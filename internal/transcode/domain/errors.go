package domain

import (
	"errors"
	"fmt"
)

// Stage pipeline stage name, used in logs and dead-letter headers
type Stage string

const (
	StageDecode    Stage = "decode"
	StageResolve   Stage = "resolve"
	StageLock      Stage = "lock"
	StageStaging   Stage = "staging"
	StageTranscode Stage = "transcode"
	StagePublish   Stage = "publish"
	StageFinalize  Stage = "finalize"
)

var (
	// ErrInvalidJob message body is not a valid job
	ErrInvalidJob = errors.New("invalid transcode job")
	// ErrNotFound job references an unknown video
	ErrNotFound = errors.New("video not found")
	// ErrAlreadyProcessed duplicate delivery of a finished job
	ErrAlreadyProcessed = errors.New("video already processed")
	// ErrJobLocked another delivery of the same video is running
	ErrJobLocked = errors.New("video job already in flight")

	ErrResolve   = errors.New("resolve error")
	ErrStaging   = errors.New("staging error")
	ErrTranscode = errors.New("transcode error")
	ErrPublish   = errors.New("publish error")
	ErrFinalize  = errors.New("finalize error")
)

var stageSentinels = map[Stage]error{
	StageDecode:    ErrInvalidJob,
	StageResolve:   ErrResolve,
	StageLock:      ErrJobLocked,
	StageStaging:   ErrStaging,
	StageTranscode: ErrTranscode,
	StagePublish:   ErrPublish,
	StageFinalize:  ErrFinalize,
}

// StageError failure of one pipeline stage
type StageError struct {
	Stage     Stage
	VideoID   string
	Rendition RenditionKind
	Err       error
}

// NewStageError create StageError
func NewStageError(stage Stage, videoID string, err error) *StageError {
	return &StageError{Stage: stage, VideoID: videoID, Err: err}
}

func (e *StageError) Error() string {
	if e.Rendition != "" {
		return fmt.Sprintf("videoID[%s] %s[%s] 失敗 : %v", e.VideoID, e.Stage, e.Rendition, e.Err)
	}
	return fmt.Sprintf("videoID[%s] %s 失敗 : %v", e.VideoID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is match the stage sentinel, e.g. errors.Is(err, ErrPublish)
func (e *StageError) Is(target error) bool {
	sentinel, ok := stageSentinels[e.Stage]
	return ok && target == sentinel
}

// FailedStage return the stage of err, empty when err is not a StageError
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
