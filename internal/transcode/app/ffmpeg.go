package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"video_processor_worker/internal/transcode/domain"
)

const stderrTailSize = 4096

// Runner run one transcoder process, stderr is returned for diagnostics
type Runner interface {
	Run(ctx context.Context, args []string) (stderr string, err error)
}

// FFmpegRunner run the ffmpeg binary
type FFmpegRunner struct {
	Path string
}

// Run 執行 ffmpeg，ctx 到期時 process 會被 kill
func (r FFmpegRunner) Run(ctx context.Context, args []string) (string, error) {
	path := r.Path
	if path == "" {
		path = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("ffmpeg timed out: %w", ctx.Err())
	}
	return tail(stderr.String(), stderrTailSize), err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

type renditionTemplate struct {
	fileName    string
	contentType string
	height      int // 0 = still image
}

var renditionTemplates = map[domain.RenditionKind]renditionTemplate{
	domain.RenditionThumbnail: {fileName: "thumb.jpg", contentType: "image/jpeg"},
	domain.Rendition480p:      {fileName: "video_480p.mp4", contentType: "video/mp4", height: 480},
	domain.Rendition720p:      {fileName: "video_720p.mp4", contentType: "video/mp4", height: 720},
}

// BuildRenditions build the fixed rendition set for one job, in domain.RenditionKinds order
func BuildRenditions(video *domain.Video, sourcePath, outputDir string, thumbnailOffset int) []domain.Rendition {
	renditions := make([]domain.Rendition, 0, len(domain.RenditionKinds))
	for _, kind := range domain.RenditionKinds {
		t := renditionTemplates[kind]
		out := filepath.Join(outputDir, t.fileName)

		var args, fallback []string
		if t.height == 0 {
			args = thumbnailArgs(sourcePath, out, thumbnailOffset)
			// 影片比 offset 短時 ffmpeg 不會輸出，改取第一格
			if thumbnailOffset > 0 {
				fallback = thumbnailArgs(sourcePath, out, 0)
			}
		} else {
			args = scaleArgs(sourcePath, out, t.height)
		}

		renditions = append(renditions, domain.Rendition{
			Kind:         kind,
			FileName:     t.fileName,
			LocalPath:    out,
			RemoteKey:    domain.RenditionKey(video.UserID, video.ID, t.fileName),
			ContentType:  t.contentType,
			Args:         args,
			FallbackArgs: fallback,
		})
	}
	return renditions
}

// 取第 offset 秒的一張高品質截圖
func thumbnailArgs(in, out string, offset int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.Itoa(offset),
		"-i", in,
		"-frames:v", "1",
		"-q:v", "2",
		out,
	}
}

// 等比縮放到指定高度，寬度取偶數 (-2)
func scaleArgs(in, out string, height int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-vf", fmt.Sprintf("scale=-2:%d", height),
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		out,
	}
}
