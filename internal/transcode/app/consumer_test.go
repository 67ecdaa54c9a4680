package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"video_processor_worker/internal/transcode/domain"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testJob = `{"videoId":"11111111-1111-1111-1111-111111111111"}`

var testVideoID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

func newTestConsumer(rabbit *MockRabbitChannel, processor JobProcessor) (*Consumer, *[]time.Duration) {
	c := NewConsumer(rabbit, processor, ConsumerOptions{
		QueueName:       "video-processing",
		DeadLetterQueue: "video-processing.dead",
		ConsumerTag:     "worker-test",
		MaxJobs:         2,
		RequeueDelay:    3 * time.Second,
	})
	var mu sync.Mutex
	slept := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		*slept = append(*slept, d)
	}
	return c, slept
}

func deadLetterTo(stage domain.Stage) interface{} {
	return mock.MatchedBy(func(p amqp.Publishing) bool {
		return p.Headers[HeaderFailureStage] == string(stage) &&
			p.Headers[HeaderOriginalQueue] == "video-processing" &&
			p.Headers[HeaderError] != "" &&
			p.DeliveryMode == amqp.Persistent
	})
}

func TestConsumerHandleDelivery(t *testing.T) {
	transcodeErr := &domain.StageError{
		Stage:     domain.StageTranscode,
		VideoID:   testVideoID.String(),
		Rendition: domain.Rendition720p,
		Err:       errors.New("exit status 1"),
	}

	tests := []struct {
		name        string
		body        string
		processErr  error
		dlqStage    domain.Stage
		wantAcks    int
		wantRequeue []bool
		wantSleep   int
	}{
		{name: "processed", body: testJob, wantAcks: 1},
		{name: "duplicate of processed video", body: testJob, processErr: domain.ErrAlreadyProcessed, wantAcks: 1},
		{name: "malformed body", body: `not json`, dlqStage: domain.StageDecode, wantAcks: 1},
		{name: "video id not uuid", body: `{"videoId":"abc"}`, dlqStage: domain.StageDecode, wantAcks: 1},
		{name: "unknown video", body: testJob, processErr: domain.ErrNotFound, dlqStage: domain.StageResolve, wantAcks: 1},
		{name: "transcode failure", body: testJob, processErr: transcodeErr, dlqStage: domain.StageTranscode, wantAcks: 1},
		{name: "locked elsewhere", body: testJob, processErr: domain.ErrJobLocked, wantRequeue: []bool{true}, wantSleep: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rabbit := new(MockRabbitChannel)
			processor := new(MockJobProcessor)
			processor.On("Process", mock.Anything, testVideoID).Return(nil, tt.processErr).Maybe()
			if tt.dlqStage != "" {
				rabbit.On("Publish", "", "video-processing.dead", false, false, deadLetterTo(tt.dlqStage)).Return(nil).Once()
			}

			c, slept := newTestConsumer(rabbit, processor)
			ack := &fakeAcknowledger{}
			c.HandleDelivery(context.Background(), newDelivery(ack, tt.body))

			acks, nacks := ack.counts()
			assert.Equal(t, tt.wantAcks, acks)
			assert.Equal(t, len(tt.wantRequeue), nacks)
			assert.Equal(t, tt.wantRequeue, ack.requeue)
			assert.Len(t, *slept, tt.wantSleep)
			assert.Equal(t, 1, acks+nacks, "every delivery is settled exactly once")
			assert.Zero(t, c.InFlight())
			rabbit.AssertExpectations(t)
			if tt.dlqStage == "" {
				rabbit.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestConsumerDeadLetterPublishFailureRequeues(t *testing.T) {
	rabbit := new(MockRabbitChannel)
	rabbit.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("channel closed"))
	processor := new(MockJobProcessor)
	processor.On("Process", mock.Anything, testVideoID).Return(nil, domain.NewStageError(domain.StagePublish, "x", errors.New("s3 down")))

	c, slept := newTestConsumer(rabbit, processor)
	ack := &fakeAcknowledger{}
	c.HandleDelivery(context.Background(), newDelivery(ack, testJob))

	acks, nacks := ack.counts()
	assert.Zero(t, acks)
	assert.Equal(t, 1, nacks)
	assert.Equal(t, []bool{true}, ack.requeue)
	assert.Equal(t, []time.Duration{3 * time.Second}, *slept)
}

func TestConsumerWithoutDeadLetterQueueDrops(t *testing.T) {
	rabbit := new(MockRabbitChannel)
	processor := new(MockJobProcessor)

	c := NewConsumer(rabbit, processor, ConsumerOptions{})
	ack := &fakeAcknowledger{}
	c.HandleDelivery(context.Background(), newDelivery(ack, "{"))

	assert.Equal(t, []bool{false}, ack.requeue)
	rabbit.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

type panicProcessor struct{}

func (panicProcessor) Process(context.Context, uuid.UUID) (*domain.JobReport, error) {
	panic("nil pointer")
}

func TestConsumerRecoversPanic(t *testing.T) {
	rabbit := new(MockRabbitChannel)
	rabbit.On("Publish", "", "video-processing.dead", false, false, deadLetterTo("unknown")).Return(nil).Once()

	c, _ := newTestConsumer(rabbit, panicProcessor{})
	ack := &fakeAcknowledger{}
	assert.NotPanics(t, func() {
		c.HandleDelivery(context.Background(), newDelivery(ack, testJob))
	})

	acks, _ := ack.counts()
	assert.Equal(t, 1, acks)
	rabbit.AssertExpectations(t)
}

func TestConsumerProcessContextSurvivesShutdown(t *testing.T) {
	rabbit := new(MockRabbitChannel)
	processor := new(MockJobProcessor)
	processor.On("Process", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), testVideoID).Return(nil, nil).Once()

	c, _ := newTestConsumer(rabbit, processor)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ack := &fakeAcknowledger{}
	c.HandleDelivery(ctx, newDelivery(ack, testJob))

	acks, _ := ack.counts()
	assert.Equal(t, 1, acks)
	processor.AssertExpectations(t)
}

func TestConsumerStart(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 3)
	rabbit := new(MockRabbitChannel)
	rabbit.On("Qos", 2).Return(nil).Once()
	rabbit.On("Consume", "video-processing", "worker-test").Return((<-chan amqp.Delivery)(deliveries), nil).Once()

	processor := new(MockJobProcessor)
	processor.On("Process", mock.Anything, testVideoID).Return(nil, nil)

	c, _ := newTestConsumer(rabbit, processor)
	ack := &fakeAcknowledger{}
	for i := 0; i < 3; i++ {
		deliveries <- newDelivery(ack, testJob)
	}
	close(deliveries)

	require.NoError(t, c.Start(context.Background()))
	c.Wait()

	acks, nacks := ack.counts()
	assert.Equal(t, 3, acks)
	assert.Zero(t, nacks)
	assert.False(t, c.Running())
	processor.AssertNumberOfCalls(t, "Process", 3)
}

type blockingProcessor struct {
	release  chan struct{}
	mu       sync.Mutex
	running  int
	maxSeen  int
	finished int
}

func (p *blockingProcessor) Process(context.Context, uuid.UUID) (*domain.JobReport, error) {
	p.mu.Lock()
	p.running++
	if p.running > p.maxSeen {
		p.maxSeen = p.running
	}
	p.mu.Unlock()

	<-p.release

	p.mu.Lock()
	p.running--
	p.finished++
	p.mu.Unlock()
	return nil, nil
}

func TestConsumerBoundsConcurrentJobs(t *testing.T) {
	deliveries := make(chan amqp.Delivery, 5)
	rabbit := new(MockRabbitChannel)
	rabbit.On("Qos", 2).Return(nil)
	rabbit.On("Consume", mock.Anything, mock.Anything).Return((<-chan amqp.Delivery)(deliveries), nil)
	rabbit.On("Cancel", "worker-test").Return(nil).Once()

	processor := &blockingProcessor{release: make(chan struct{})}
	c, _ := newTestConsumer(rabbit, processor)
	ack := &fakeAcknowledger{}
	for i := 0; i < 5; i++ {
		deliveries <- newDelivery(ack, testJob)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	assert.Eventually(t, func() bool { return c.InFlight() == 2 }, time.Second, 5*time.Millisecond)
	close(processor.release)
	assert.Eventually(t, func() bool {
		acks, _ := ack.counts()
		return acks == 5
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	c.Wait()

	assert.LessOrEqual(t, processor.maxSeen, 2)
	assert.Equal(t, 5, processor.finished)
	rabbit.AssertExpectations(t)
}

func TestConsumerStartErrors(t *testing.T) {
	rabbit := new(MockRabbitChannel)
	rabbit.On("Qos", 1).Return(errors.New("channel closed"))
	c := NewConsumer(rabbit, new(MockJobProcessor), ConsumerOptions{})
	assert.ErrorContains(t, c.Start(context.Background()), "Qos")

	rabbit = new(MockRabbitChannel)
	rabbit.On("Qos", 1).Return(nil)
	rabbit.On("Consume", domain.QueueName, "").Return(nil, errors.New("no queue"))
	c = NewConsumer(rabbit, new(MockJobProcessor), ConsumerOptions{})
	assert.ErrorContains(t, c.Start(context.Background()), "no queue")
}
