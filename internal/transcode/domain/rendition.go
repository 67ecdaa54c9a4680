package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RenditionKind definition rendition type
type RenditionKind string

const (
	// RenditionThumbnail still image near the start
	RenditionThumbnail RenditionKind = "thumbnail"
	// Rendition480p 480p mp4
	Rendition480p RenditionKind = "480p"
	// Rendition720p 720p mp4
	Rendition720p RenditionKind = "720p"
)

// RenditionKinds fixed rendition set, publish order
var RenditionKinds = []RenditionKind{RenditionThumbnail, Rendition480p, Rendition720p}

// Rendition 單一輸出的描述，純資料
type Rendition struct {
	Kind        RenditionKind
	FileName    string
	LocalPath   string
	RemoteKey   string
	ContentType string
	Args        []string
	// FallbackArgs 主要參數沒有產出檔案時重跑一次，nil 表示不重試
	FallbackArgs []string
}

// TranscodeResult outcome of one transcode operation
type TranscodeResult struct {
	Kind     RenditionKind
	Duration time.Duration
	Stderr   string
	Err      error
}

// RenditionKey deterministic processed key {userId}/{videoId}/{fileName}
func RenditionKey(userID string, videoID uuid.UUID, fileName string) string {
	return fmt.Sprintf("%s/%s/%s", userID, videoID, fileName)
}
