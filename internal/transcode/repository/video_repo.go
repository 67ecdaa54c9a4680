package repository

import (
	"context"
	"errors"

	"video_processor_worker/internal/transcode/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VideoRepo definition video metadata access used by the pipeline
type VideoRepo interface {
	AutoMigrate() error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Video, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkProcessed(ctx context.Context, id uuid.UUID, urls domain.RenditionURLs) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[domain.VideoStatus]int64, error)
}

type videoRepo struct {
	db *gorm.DB
}

// NewVideoRepo create VideoRepo
func NewVideoRepo(db *gorm.DB) VideoRepo {
	return &videoRepo{db: db}
}

// AutoMigrate 只補缺少的欄位，不刪欄位，上傳服務仍是 schema 的 owner
func (r *videoRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.Video{})
}

// GetByID get Video by id, domain.ErrNotFound when missing
func (r *videoRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Video, error) {
	var v domain.Video
	if err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// MarkProcessing pending/failed/processing -> processing.
// domain.ErrAlreadyProcessed when already processed, domain.ErrNotFound when missing
func (r *videoRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&domain.Video{}).
		Where("id = ? AND status <> ?", id, domain.VideoProcessed).
		Update("status", domain.VideoProcessing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&domain.Video{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyProcessed
	}
	return nil
}

// MarkProcessed status 與三個 url 在同一個 UPDATE 寫入
func (r *videoRepo) MarkProcessed(ctx context.Context, id uuid.UUID, urls domain.RenditionURLs) error {
	res := r.db.WithContext(ctx).Model(&domain.Video{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         domain.VideoProcessed,
			"thumbnail_url":  urls.Thumbnail,
			"video_480p_url": urls.Video480p,
			"video_720p_url": urls.Video720p,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed only touch status, url fields keep previous values
func (r *videoRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&domain.Video{}).
		Where("id = ?", id).
		Update("status", domain.VideoFailed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type statusCount struct {
	Status domain.VideoStatus
	Total  int64
}

// CountByStatus number of videos per status
func (r *videoRepo) CountByStatus(ctx context.Context) (map[domain.VideoStatus]int64, error) {
	var rows []statusCount
	if err := r.db.WithContext(ctx).Model(&domain.Video{}).
		Select("status, count(*) as total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[domain.VideoStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
