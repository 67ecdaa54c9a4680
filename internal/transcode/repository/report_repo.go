package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video_processor_worker/internal/transcode/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReportRepo transcode diagnostics (含 ffmpeg stderr) 存在 MongoDB
type ReportRepo interface {
	Save(ctx context.Context, report *domain.JobReport) error
	Latest(ctx context.Context, videoID string) (*domain.JobReport, error)
}

type reportRepo struct {
	collection *mongo.Collection
}

// NewReportRepo create ReportRepo
func NewReportRepo(db *mongo.Database, collection string) ReportRepo {
	return &reportRepo{collection: db.Collection(collection)}
}

func (r *reportRepo) Save(ctx context.Context, report *domain.JobReport) error {
	_, err := r.collection.InsertOne(ctx, bson.M{
		"video_id":     report.VideoID.String(),
		"user_id":      report.UserID,
		"status":       report.Status,
		"failed_stage": report.FailedStage,
		"error":        report.Error,
		"urls":         report.URLs,
		"renditions":   report.Renditions,
		"started_at":   report.StartedAt,
		"finished_at":  report.FinishedAt,
	})
	return err
}

// Latest most recent report of a video, domain.ErrNotFound when none
func (r *reportRepo) Latest(ctx context.Context, videoID string) (*domain.JobReport, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "finished_at", Value: -1}})

	var doc struct {
		VideoID     string                   `bson:"video_id"`
		UserID      string                   `bson:"user_id"`
		Status      domain.VideoStatus       `bson:"status"`
		FailedStage domain.Stage             `bson:"failed_stage"`
		Error       string                   `bson:"error"`
		URLs        domain.RenditionURLs     `bson:"urls"`
		Renditions  []domain.RenditionReport `bson:"renditions"`
		StartedAt   time.Time                `bson:"started_at"`
		FinishedAt  time.Time                `bson:"finished_at"`
	}
	err := r.collection.FindOne(ctx, bson.M{"video_id": videoID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(doc.VideoID)
	if err != nil {
		return nil, fmt.Errorf("invalid video_id [%s] in report: %w", doc.VideoID, err)
	}
	return &domain.JobReport{
		VideoID:     id,
		UserID:      doc.UserID,
		Status:      doc.Status,
		FailedStage: doc.FailedStage,
		Error:       doc.Error,
		URLs:        doc.URLs,
		Renditions:  doc.Renditions,
		StartedAt:   doc.StartedAt,
		FinishedAt:  doc.FinishedAt,
	}, nil
}
