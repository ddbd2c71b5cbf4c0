package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"attendance-backend/internal/models"
	"attendance-backend/internal/repository"
)

const ReceiptQueueName = "queue:attendance-receipts"

// FeedChannel is the pub/sub channel carrying live updates for one event.
func FeedChannel(eventID string) string {
	return "attendance_updates:" + eventID
}

// AttendancePublisher pushes accepted scans to the event's live feed.
type AttendancePublisher struct {
	redis *redis.Client
}

func NewAttendancePublisher(redisClient *redis.Client) *AttendancePublisher {
	return &AttendancePublisher{redis: redisClient}
}

func (p *AttendancePublisher) PublishAttendance(ctx context.Context, update models.AttendanceUpdate) error {
	data, err := json.Marshal(models.WSMessage{Type: "attendance_update", Payload: update})
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, FeedChannel(update.EventID), data).Err()
}

// ReceiptQueue records a receipt and hands it to the worker pool.
type ReceiptQueue struct {
	redis    *redis.Client
	receipts repository.ReceiptLog
}

func NewReceiptQueue(redisClient *redis.Client, receipts repository.ReceiptLog) *ReceiptQueue {
	return &ReceiptQueue{redis: redisClient, receipts: receipts}
}

func (q *ReceiptQueue) EnqueueReceipt(ctx context.Context, job *models.ReceiptJob) error {
	if err := q.receipts.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to record receipt: %w", err)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.redis.LPush(ctx, ReceiptQueueName, data).Err()
}
