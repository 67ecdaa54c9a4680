package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e2eVideoID = "11111111-1111-1111-1111-111111111111"

func TestDecodeJob(t *testing.T) {
	t.Run("合法訊息", func(t *testing.T) {
		id, err := DecodeJob([]byte(`{"videoId":"` + e2eVideoID + `"}`))
		require.NoError(t, err)
		assert.Equal(t, uuid.MustParse(e2eVideoID), id)
	})

	t.Run("不是 JSON", func(t *testing.T) {
		_, err := DecodeJob([]byte("not json"))
		assert.ErrorIs(t, err, ErrInvalidJob)
	})

	t.Run("videoId 不是 uuid", func(t *testing.T) {
		_, err := DecodeJob([]byte(`{"videoId":"42"}`))
		assert.ErrorIs(t, err, ErrInvalidJob)
	})

	t.Run("缺少 videoId", func(t *testing.T) {
		_, err := DecodeJob([]byte(`{}`))
		assert.ErrorIs(t, err, ErrInvalidJob)
	})
}

func TestSourceKey(t *testing.T) {
	id := uuid.MustParse(e2eVideoID)
	v := Video{ID: id, UserID: "u1", FileName: "clip.mp4"}
	assert.Equal(t, "u1/"+e2eVideoID+"/clip.mp4", v.SourceKey())

	v.S3Key = "custom/key.mp4"
	assert.Equal(t, "custom/key.mp4", v.SourceKey())
}

func TestRenditionKey(t *testing.T) {
	id := uuid.MustParse(e2eVideoID)
	assert.Equal(t, "u1/"+e2eVideoID+"/thumb.jpg", RenditionKey("u1", id, "thumb.jpg"))
	// 同樣的輸入永遠得到同一個 key
	assert.Equal(t, RenditionKey("u1", id, "video_720p.mp4"), RenditionKey("u1", id, "video_720p.mp4"))
}

func TestRenditionURLs(t *testing.T) {
	var urls RenditionURLs
	assert.False(t, urls.Complete())

	urls.Set(RenditionThumbnail, "a")
	urls.Set(Rendition480p, "b")
	assert.False(t, urls.Complete())

	urls.Set(Rendition720p, "c")
	assert.True(t, urls.Complete())
	assert.Equal(t, RenditionURLs{Thumbnail: "a", Video480p: "b", Video720p: "c"}, urls)
}

func TestStageError(t *testing.T) {
	cause := errors.New("exit status 1")
	err := fmt.Errorf("job: %w", &StageError{Stage: StageTranscode, VideoID: "v1", Rendition: Rendition720p, Err: cause})

	assert.ErrorIs(t, err, ErrTranscode)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrPublish)
	assert.Equal(t, StageTranscode, FailedStage(err))
	assert.Contains(t, err.Error(), "transcode[720p]")

	assert.Equal(t, Stage(""), FailedStage(errors.New("plain")))
}
