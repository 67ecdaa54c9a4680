package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"video_processor_worker/internal/transcode/domain"
	"video_processor_worker/pkg/database"
	errprocess "video_processor_worker/pkg/err"
	"video_processor_worker/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Dead-letter headers
const (
	HeaderFailureStage  = "x-failure-stage"
	HeaderError         = "x-error"
	HeaderOriginalQueue = "x-original-queue"
	HeaderFailedAt      = "x-failed-at"
)

// ConsumerOptions consumer setting
type ConsumerOptions struct {
	QueueName       string
	DeadLetterQueue string
	ConsumerTag     string
	MaxJobs         int
	RequeueDelay    time.Duration
}

// Consumer 從 queue 取 job，處理到終態後才 ack
type Consumer struct {
	rabbit    database.RabbitRepo
	processor JobProcessor
	opts      ConsumerOptions

	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	inFlight atomic.Int64
	running  atomic.Bool

	sleep func(ctx context.Context, d time.Duration)
}

// NewConsumer 建構 Consumer 實例
func NewConsumer(rabbit database.RabbitRepo, processor JobProcessor, opts ConsumerOptions) *Consumer {
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = 1
	}
	if opts.QueueName == "" {
		opts.QueueName = domain.QueueName
	}
	return &Consumer{
		rabbit:    rabbit,
		processor: processor,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.MaxJobs)),
		sleep:     sleepContext,
	}
}

// Start consume until ctx is done or the delivery channel closes.
// In-flight jobs keep running; call Wait to join them.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.rabbit.Qos(c.opts.MaxJobs); err != nil {
		return errprocess.Wrap(err, "設定 RabbitMQ Qos 失敗", zap.Int("prefetch", c.opts.MaxJobs))
	}
	msgs, err := c.rabbit.Consume(c.opts.QueueName, c.opts.ConsumerTag)
	if err != nil {
		return errprocess.Wrap(err, "無法開始消費 RabbitMQ 訊息", zap.String("queue", c.opts.QueueName))
	}

	c.running.Store(true)
	defer c.running.Store(false)
	logger.Log.Info("Consumer 已啟動，等待轉碼工作訊息",
		zap.String("queue", c.opts.QueueName),
		zap.Int("max_jobs", c.opts.MaxJobs),
	)

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Log.Warn("RabbitMQ 消費 channel 已關閉")
				return nil
			}
			if err := c.sem.Acquire(ctx, 1); err != nil {
				// shutdown 中，交還給 broker
				c.nack(d, true)
				continue
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				defer c.sem.Release(1)
				c.HandleDelivery(ctx, d)
			}()
		case <-ctx.Done():
			logger.Log.Info("Consumer 收到停止訊號")
			if c.opts.ConsumerTag != "" {
				if err := c.rabbit.Cancel(c.opts.ConsumerTag); err != nil {
					logger.Log.Warn("取消 consumer 失敗", zap.Error(err))
				}
			}
			return nil
		}
	}
}

// Wait block until every in-flight job finished
func (c *Consumer) Wait() {
	c.wg.Wait()
}

// InFlight number of jobs being processed
func (c *Consumer) InFlight() int64 {
	return c.inFlight.Load()
}

// Running report whether the consume loop is active
func (c *Consumer) Running() bool {
	return c.running.Load()
}

// HandleDelivery process one delivery and settle it exactly once
func (c *Consumer) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Log.Error("處理轉碼工作 panic", zap.Error(err))
			c.deadLetter(ctx, d, domain.FailedStage(err), err)
		}
	}()

	videoID, err := domain.DecodeJob(d.Body)
	if err != nil {
		logger.Log.Error("解析轉碼工作訊息失敗", zap.ByteString("body", d.Body), zap.Error(err))
		c.deadLetter(ctx, d, domain.StageDecode, err)
		return
	}
	logger.Log.Info("收到轉碼工作訊息", zap.String("video_id", videoID.String()))

	// 不因 shutdown 中斷進行中的 job，各步驟自己有 timeout
	_, err = c.processor.Process(context.WithoutCancel(ctx), videoID)
	switch {
	case err == nil:
		c.ack(d, videoID.String())
	case errors.Is(err, domain.ErrAlreadyProcessed):
		c.ack(d, videoID.String())
	case errors.Is(err, domain.ErrJobLocked):
		c.sleep(ctx, c.opts.RequeueDelay)
		c.nack(d, true)
	case errors.Is(err, domain.ErrNotFound):
		c.deadLetter(ctx, d, domain.StageResolve, err)
	default:
		c.deadLetter(ctx, d, domain.FailedStage(err), err)
	}
}

// deadLetter 失敗的 job 送到 DLQ 後才 ack；DLQ 發送失敗就 requeue，避免遺失
func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, stage domain.Stage, cause error) {
	if c.opts.DeadLetterQueue == "" {
		c.nack(d, false)
		return
	}
	if stage == "" {
		stage = "unknown"
	}

	err := c.rabbit.Publish("", c.opts.DeadLetterQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers: amqp.Table{
			HeaderFailureStage:  string(stage),
			HeaderError:         cause.Error(),
			HeaderOriginalQueue: c.opts.QueueName,
			HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339),
		},
		Body: d.Body,
	})
	if err != nil {
		logger.Log.Error("發送 dead-letter 失敗，重新排入佇列", zap.Error(err))
		c.sleep(ctx, c.opts.RequeueDelay)
		c.nack(d, true)
		return
	}

	logger.Log.Warn("轉碼工作送往 dead-letter queue",
		zap.String("queue", c.opts.DeadLetterQueue),
		zap.String("stage", string(stage)),
		zap.Error(cause),
	)
	if err := d.Ack(false); err != nil {
		logger.Log.Error("確認訊息失敗", zap.Error(err))
	}
}

func (c *Consumer) ack(d amqp.Delivery, videoID string) {
	if err := d.Ack(false); err != nil {
		logger.Log.Error("確認訊息失敗", zap.String("video_id", videoID), zap.Error(err))
		return
	}
	logger.Log.Info("成功處理並確認訊息", zap.String("video_id", videoID))
}

func (c *Consumer) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		logger.Log.Error("Nack 訊息失敗", zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
