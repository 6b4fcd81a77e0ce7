package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haontuhcmut/lab-services/internal/obs"
)

const queueKey = "mail:outbox"

// RedisQueue pushes email jobs onto a Redis list; a Worker on the other side
// pops and delivers them. The broker survives process restarts, so enqueued
// mail is not lost on shutdown.
type RedisQueue struct {
	client *redis.Client
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, queueKey, payload).Err()
}

// Worker drains the Redis mail queue and hands each job to the sender.
type Worker struct {
	client *redis.Client
	sender Sender
}

func NewWorker(client *redis.Client, sender Sender) *Worker {
	return &Worker{client: client, sender: sender}
}

// Run blocks until ctx is cancelled, popping one job at a time. A failed
// delivery is logged and dropped; the queue holds no retry state.
func (w *Worker) Run(ctx context.Context) {
	for {
		res, err := w.client.BRPop(ctx, 5*time.Second, queueKey).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			obs.LogRequest(map[string]any{"level": "error", "msg": "mail queue pop failed", "error": err.Error()})
			continue
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			obs.LogRequest(map[string]any{"level": "error", "msg": "mail job malformed", "error": err.Error()})
			continue
		}
		if err := w.sender.Send(ctx, msg); err != nil {
			obs.LogRequest(map[string]any{"level": "error", "msg": "mail delivery failed", "error": err.Error(), "subject": msg.Subject})
			continue
		}
		obs.LogRequest(map[string]any{"level": "info", "msg": "mail sent", "subject": msg.Subject, "recipients": len(msg.To)})
	}
}
