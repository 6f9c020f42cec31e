package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"FinWatch/pkg/logger"
)

// RedisQueue is a list-backed work queue with delayed retries and a dead
// letter list. Without registered jobs it only publishes.
type RedisQueue struct {
	l      *logger.Logger
	cfg    Config
	client redis.UniversalClient

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedisQueue creates a queue under cfg.KeyPrefix.
func NewRedisQueue(client redis.UniversalClient, cfg Config, l *logger.Logger) *RedisQueue {
	cfg.setDefaults()
	if l == nil {
		l = logger.Nop()
	}
	return &RedisQueue{
		l:      l.With("queue"),
		cfg:    cfg,
		client: client,
		jobs:   make(map[string]Job),
	}
}

// RegisterJob registers the handler for job.Type(). Must be called before Start.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.l.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start checks the connection and, when jobs are registered, starts the
// workers and the retry promoter.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.running = true

	if len(r.jobs) == 0 {
		r.l.Info("redis publisher started", logger.String("prefix", r.cfg.KeyPrefix))
		return nil
	}
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = stop
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx, i)
	}
	r.wg.Add(1)
	go r.retryLoop(runCtx)
	r.l.Info("redis queue started", logger.Int("workers", r.cfg.Workers), logger.String("prefix", r.cfg.KeyPrefix))
	return nil
}

// Stop cancels the workers and waits for in-flight messages.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// Publish pushes a message onto the queue.
func (r *RedisQueue) Publish(ctx context.Context, msgType string, payload interface{}) error {
	msg, err := newMessage(uuid.NewString(), msgType, payload, time.Now().UTC())
	if err != nil {
		return err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, r.cfg.PollInterval, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.l.Error("brpop error", logger.Int("worker", id), logger.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.l.Error("unmarshal message", logger.Error(err))
			continue
		}
		r.process(ctx, msg)
	}
}

// process runs the job for msg and schedules a retry or dead-letters it on failure.
func (r *RedisQueue) process(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.l.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(ctx, msg)
		return
	}

	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	r.l.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.cfg.RetryLimit {
		r.deadLetter(ctx, msg)
		return
	}
	msg.Attempts++
	b, _ := json.Marshal(msg)
	at := time.Now().Add(r.cfg.RetryDelay)
	if err := r.client.ZAdd(ctx, r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: b}).Err(); err != nil {
		r.l.Error("schedule retry", logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(ctx context.Context, msg Message) {
	b, _ := json.Marshal(msg)
	if err := r.client.LPush(context.WithoutCancel(ctx), r.deadLetterKey(), b).Err(); err != nil {
		r.l.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.promoteRetries(ctx)
		}
	}
}

// promoteRetries moves due retries back onto the main list.
func (r *RedisQueue) promoteRetries(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			r.l.Error("fetch retry messages", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.retryKey(), member)
		pipe.LPush(ctx, r.queueKey(), member)
		if _, err := pipe.Exec(ctx); err != nil {
			if ctx.Err() == nil {
				r.l.Error("move retry to queue", logger.Error(err))
			}
			return
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.cfg.KeyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.cfg.KeyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.cfg.KeyPrefix + ":dlq" }

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

var _ Publisher = (*RedisQueue)(nil)
