package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	// QueueName definition queue name
	QueueName = "video-processing"
)

// TranscodeJob 定義轉碼工作訊息
type TranscodeJob struct {
	VideoID string `json:"videoId"`
}

// DecodeJob parse message body, the video id must be a uuid
func DecodeJob(body []byte) (uuid.UUID, error) {
	var job TranscodeJob
	if err := json.Unmarshal(body, &job); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	id, err := uuid.Parse(job.VideoID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: videoId[%s] %v", ErrInvalidJob, job.VideoID, err)
	}
	return id, nil
}
