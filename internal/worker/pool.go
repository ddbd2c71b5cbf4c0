package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"attendance-backend/internal/metrics"
	"attendance-backend/internal/models"
	"attendance-backend/internal/repository"
	"attendance-backend/internal/services"
)

const maxReceiptAttempts = 3

// ReceiptSender delivers one receipt; *services.EmailService in production.
type ReceiptSender interface {
	SendAttendanceReceipt(job *models.ReceiptJob) error
}

type Pool struct {
	redis       *redis.Client
	sender      ReceiptSender
	receipts    repository.ReceiptLog
	workerCount int
	stopChan    chan struct{}

	// requeue puts a failed job back on the queue after the backoff.
	requeue func(job *models.ReceiptJob, backoff time.Duration)
}

func NewPool(redisClient *redis.Client, sender ReceiptSender, receipts repository.ReceiptLog, workerCount int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	p := &Pool{
		redis:       redisClient,
		sender:      sender,
		receipts:    receipts,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
	p.requeue = p.requeueAfter
	return p
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d receipt worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, services.ReceiptQueueName).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var job models.ReceiptJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse receipt job: %v", id, err)
			continue
		}

		lockKey := fmt.Sprintf("receipt_lock:%s", job.ID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 5*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		log.Printf("Worker %d: sending %s receipt %s to %s", id, job.Action, job.ID, job.To)
		p.process(ctx, &job)

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) process(ctx context.Context, job *models.ReceiptJob) {
	p.receipts.UpdateStatus(ctx, job.ID, models.ReceiptProcessing)

	if err := p.sender.SendAttendanceReceipt(job); err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	p.receipts.UpdateStatus(ctx, job.ID, models.ReceiptSent)
	metrics.ReceiptsTotal.WithLabelValues("sent").Inc()
}

func (p *Pool) handleFailure(ctx context.Context, job *models.ReceiptJob, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount < maxReceiptAttempts {
		log.Printf("Receipt %s failed (attempt %d): %s, retrying", job.ID, job.RetryCount, errMsg)
		p.receipts.UpdateStatus(ctx, job.ID, models.ReceiptPending)
		p.receipts.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
		metrics.ReceiptsTotal.WithLabelValues("retried").Inc()

		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		p.requeue(job, backoff)
		return
	}

	log.Printf("Receipt %s failed permanently: %s", job.ID, errMsg)
	p.receipts.UpdateStatus(ctx, job.ID, models.ReceiptFailed)
	p.receipts.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	metrics.ReceiptsTotal.WithLabelValues("failed").Inc()
}

func (p *Pool) requeueAfter(job *models.ReceiptJob, backoff time.Duration) {
	jobBytes, _ := json.Marshal(job)
	time.AfterFunc(backoff, func() {
		p.redis.LPush(context.Background(), services.ReceiptQueueName, string(jobBytes))
	})
}
