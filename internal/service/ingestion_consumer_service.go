package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/rag"
	"docchat-be/pkg/rag/ingestion"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/panjf2000/ants/v2"
)

type IIngestionConsumerService interface {
	Consume(ctx context.Context) error
	Close()
}

type ingestionConsumerService struct {
	subscriber message.Subscriber
	topicName  string
	pipeline   *ingestion.Pipeline
	pool       *ants.Pool
	logger     logger.ILogger
}

func NewIngestionConsumerService(
	subscriber message.Subscriber,
	topicName string,
	pipeline *ingestion.Pipeline,
	workers int,
	log logger.ILogger,
) (IIngestionConsumerService, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		log.Error("INGESTION", "Worker panic", map[string]interface{}{"panic": fmt.Sprint(p)})
	}))
	if err != nil {
		return nil, err
	}

	return &ingestionConsumerService{
		subscriber: subscriber,
		topicName:  topicName,
		pipeline:   pipeline,
		pool:       pool,
		logger:     log,
	}, nil
}

func (cs *ingestionConsumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.dispatch(ctx, msg)
		}
	}()

	return nil
}

// dispatch acks before the job runs: a failed ingestion is terminal and is
// reported through the job tracker, never redelivered.
func (cs *ingestionConsumerService) dispatch(ctx context.Context, msg *message.Message) {
	var job ingestion.Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		cs.logger.Error("INGESTION", "Failed to unmarshal job", map[string]interface{}{"error": err.Error()})
		msg.Ack()
		return
	}
	msg.Ack()

	if err := cs.pool.Submit(func() { cs.process(ctx, job) }); err != nil {
		cs.pipeline.Fail(ctx, job, ingestion.Status{}, fmt.Errorf("schedule ingestion: %w", err))
	}
}

func (cs *ingestionConsumerService) process(ctx context.Context, job ingestion.Job) {
	cs.logger.Info("INGESTION", "Processing document", map[string]interface{}{
		"job_id":   job.ID,
		"filename": job.Filename,
	})

	data, err := os.ReadFile(job.Path)
	if err != nil {
		cs.pipeline.Fail(ctx, job, ingestion.Status{}, fmt.Errorf("%w: read upload: %v", rag.ErrExtraction, err))
		return
	}

	// Run records FAILED itself.
	_, _ = cs.pipeline.Run(ctx, job, data)
}

func (cs *ingestionConsumerService) Close() {
	cs.pool.Release()
}
