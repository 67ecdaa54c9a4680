package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VideoStatus definition video status
type VideoStatus string

const (
	// VideoPending uploaded, waiting for transcode
	VideoPending VideoStatus = "pending"
	// VideoProcessing a worker is transcoding it
	VideoProcessing VideoStatus = "processing"
	// VideoProcessed all renditions published
	VideoProcessed VideoStatus = "processed"
	// VideoFailed last attempt failed
	VideoFailed VideoStatus = "failed"
)

// Video 影片 metadata，由上傳服務寫入，worker 只在開始讀一次、結束寫一次
type Video struct {
	ID           uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	UserID       string      `gorm:"column:user_id"`
	FileName     string      `gorm:"column:file_name"`
	S3Key        string      `gorm:"column:s3key"` // raw-uploads 上的 object key
	UploadTime   time.Time   `gorm:"column:upload_time"`
	Status       VideoStatus `gorm:"column:status;default:pending"`
	ThumbnailURL *string     `gorm:"column:thumbnail_url"`
	Video480pURL *string     `gorm:"column:video_480p_url"`
	Video720pURL *string     `gorm:"column:video_720p_url"`
}

// TableName gorm table name
func (Video) TableName() string {
	return "video"
}

// SourceKey raw object key, falls back to {userId}/{videoId}/{fileName}
func (v *Video) SourceKey() string {
	if v.S3Key != "" {
		return v.S3Key
	}
	return fmt.Sprintf("%s/%s/%s", v.UserID, v.ID, v.FileName)
}

// RenditionURLs the three published rendition keys, written together
type RenditionURLs struct {
	Thumbnail string `json:"thumbnailUrl"`
	Video480p string `json:"video480pUrl"`
	Video720p string `json:"video720pUrl"`
}

// Complete report all three urls are set
func (u RenditionURLs) Complete() bool {
	return u.Thumbnail != "" && u.Video480p != "" && u.Video720p != ""
}

// Set assign url by rendition kind
func (u *RenditionURLs) Set(kind RenditionKind, url string) {
	switch kind {
	case RenditionThumbnail:
		u.Thumbnail = url
	case Rendition480p:
		u.Video480p = url
	case Rendition720p:
		u.Video720p = url
	}
}
