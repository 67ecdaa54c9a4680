package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/pkg/database"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/mock"
)

// MockMinIOClient 是 MinIOClientRepo 的 Mock
type MockMinIOClient struct {
	mock.Mock
}

// UploadFile 模擬 MinIO 上傳行為
func (m *MockMinIOClient) UploadFile(ctx context.Context, objectName, filePath, contentType string) error {
	args := m.Called(ctx, objectName, filePath, contentType)
	return args.Error(0)
}

// DownloadFile 模擬 MinIO 下載行為
func (m *MockMinIOClient) DownloadFile(ctx context.Context, objectName, destPath string) error {
	args := m.Called(ctx, objectName, destPath)
	return args.Error(0)
}

// PresignGetURL 模擬 MinIO presign url
func (m *MockMinIOClient) PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectName, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockMinIOClient) ObjectExists(ctx context.Context, objectName string) (bool, error) {
	args := m.Called(ctx, objectName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOClient) Bucket() string {
	return "mock-bucket"
}

// MockVideoRepo 是 VideoRepo 的 Mock
type MockVideoRepo struct {
	mock.Mock
}

func (m *MockVideoRepo) AutoMigrate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockVideoRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Video, error) {
	args := m.Called(ctx, id)
	if v, ok := args.Get(0).(*domain.Video); ok {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockVideoRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockVideoRepo) MarkProcessed(ctx context.Context, id uuid.UUID, urls domain.RenditionURLs) error {
	args := m.Called(ctx, id, urls)
	return args.Error(0)
}

func (m *MockVideoRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockVideoRepo) CountByStatus(ctx context.Context) (map[domain.VideoStatus]int64, error) {
	args := m.Called(ctx)
	if c, ok := args.Get(0).(map[domain.VideoStatus]int64); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRabbitChannel 是 RabbitRepo 的 Mock
type MockRabbitChannel struct {
	mock.Mock
}

var _ database.RabbitRepo = (*MockRabbitChannel)(nil)

func (m *MockRabbitChannel) DeclareQueue(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockRabbitChannel) Qos(prefetch int) error {
	args := m.Called(prefetch)
	return args.Error(0)
}

func (m *MockRabbitChannel) Consume(queue, consumer string) (<-chan amqp.Delivery, error) {
	args := m.Called(queue, consumer)
	if ch, ok := args.Get(0).(<-chan amqp.Delivery); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRabbitChannel) Cancel(consumer string) error {
	args := m.Called(consumer)
	return args.Error(0)
}

func (m *MockRabbitChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

// MockJobProcessor 是 JobProcessor 的 Mock
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) Process(ctx context.Context, videoID uuid.UUID) (*domain.JobReport, error) {
	args := m.Called(ctx, videoID)
	if r, ok := args.Get(0).(*domain.JobReport); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeAcknowledger 記錄 ack / nack
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) counts() (acks, nacks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks
}

func newDelivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(body)}
}

// fakeRunner 不跑 ffmpeg，直接寫出 output 檔 (args 最後一個)
type fakeRunner struct {
	mu    sync.Mutex
	fail  map[string]error // output base name -> error
	delay time.Duration
	calls [][]string

	running    atomic.Int64
	maxRunning atomic.Int64
	canceled   atomic.Int64
}

func (r *fakeRunner) Run(ctx context.Context, args []string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	failErr := r.fail[filepath.Base(args[len(args)-1])]
	r.mu.Unlock()

	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		cur := r.maxRunning.Load()
		if n <= cur || r.maxRunning.CompareAndSwap(cur, n) {
			break
		}
	}

	if failErr != nil {
		return "fake ffmpeg: " + failErr.Error(), failErr
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			r.canceled.Add(1)
			return "", ctx.Err()
		}
	}

	out := args[len(args)-1]
	if err := os.WriteFile(out, []byte("rendition of "+out), 0644); err != nil {
		return "", err
	}
	return "", nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// memVideoRepo in-memory VideoRepo
type memVideoRepo struct {
	mu     sync.Mutex
	videos map[uuid.UUID]*domain.Video
	writes int

	markProcessedErr error
}

func newMemVideoRepo(videos ...*domain.Video) *memVideoRepo {
	r := &memVideoRepo{videos: map[uuid.UUID]*domain.Video{}}
	for _, v := range videos {
		r.videos[v.ID] = v
	}
	return r
}

func (r *memVideoRepo) AutoMigrate() error { return nil }

func (r *memVideoRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *memVideoRepo) MarkProcessing(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	if v.Status == domain.VideoProcessed {
		return domain.ErrAlreadyProcessed
	}
	r.writes++
	v.Status = domain.VideoProcessing
	return nil
}

func (r *memVideoRepo) MarkProcessed(_ context.Context, id uuid.UUID, urls domain.RenditionURLs) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markProcessedErr != nil {
		return r.markProcessedErr
	}
	v, ok := r.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.writes++
	v.Status = domain.VideoProcessed
	v.ThumbnailURL, v.Video480pURL, v.Video720pURL = &urls.Thumbnail, &urls.Video480p, &urls.Video720p
	return nil
}

func (r *memVideoRepo) MarkFailed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.writes++
	v.Status = domain.VideoFailed
	return nil
}

func (r *memVideoRepo) CountByStatus(context.Context) (map[domain.VideoStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[domain.VideoStatus]int64{}
	for _, v := range r.videos {
		counts[v.Status]++
	}
	return counts, nil
}

func (r *memVideoRepo) get(id uuid.UUID) domain.Video {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.videos[id]
}

func (r *memVideoRepo) setStatus(id uuid.UUID, status domain.VideoStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos[id].Status = status
}

// memStore in-memory bucket
type memStore struct {
	mu        sync.Mutex
	bucket    string
	objects   map[string][]byte
	uploads   int
	downloads int
	uploadErr map[string]error
}

func newMemStore(bucket string) *memStore {
	return &memStore{bucket: bucket, objects: map[string][]byte{}, uploadErr: map[string]error{}}
}

func (s *memStore) UploadFile(_ context.Context, objectName, filePath, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.uploadErr[objectName]; err != nil {
		return err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	s.uploads++
	s.objects[objectName] = data
	return nil
}

func (s *memStore) DownloadFile(_ context.Context, objectName, destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads++
	data, ok := s.objects[objectName]
	if !ok {
		return fmt.Errorf("object [%s]: %w", objectName, errors.New("NoSuchKey"))
	}
	return os.WriteFile(destPath, data, 0644)
}

func (s *memStore) PresignGetURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return fmt.Sprintf("http://minio.local/%s/%s?sig=x", s.bucket, objectName), nil
}

func (s *memStore) ObjectExists(_ context.Context, objectName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectName]
	return ok, nil
}

func (s *memStore) Bucket() string { return s.bucket }

func (s *memStore) put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// captureReporter 保存收到的 report
type captureReporter struct {
	mu      sync.Mutex
	reports []*domain.JobReport
	err     error
}

func (c *captureReporter) Report(_ context.Context, report *domain.JobReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
	return c.err
}

func (c *captureReporter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

// stubLock returns a fixed Acquire error
type stubLock struct {
	err      error
	released atomic.Int64
}

func (l *stubLock) Acquire(context.Context, string) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	return func(context.Context) error {
		l.released.Add(1)
		return nil
	}, nil
}
