package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"machrent/internal/domain"
	"machrent/internal/events"
	"machrent/internal/metrics"
	"machrent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ReceiptSender delivers a receipt to its chat.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, receipt models.Receipt) error
}

// ReceiptTask is the unit of work; Attempt counts failed deliveries.
type ReceiptTask struct {
	Receipt   models.Receipt `json:"receipt"`
	Attempt   int            `json:"attempt"`
	LastError string         `json:"last_error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ReceiptWorker delivers receipts of submitted rentals in the background. It
// prefers a Redis list so that queued receipts survive a restart and falls
// back to an in-memory queue when Redis is missing or failing.
type ReceiptWorker struct {
	sender        ReceiptSender
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan ReceiptTask
	redisQueueKey string
	deadLetterKey string
	pollTimeout   time.Duration
	logger        zerolog.Logger

	wg sync.WaitGroup
}

var _ domain.ReceiptNotifier = (*ReceiptWorker)(nil)

func NewReceiptWorker(sender ReceiptSender, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *ReceiptWorker {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "receipt_worker").Logger()
	}

	return &ReceiptWorker{
		sender:        sender,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan ReceiptTask, models.NotifierQueueSize),
		redisQueueKey: "machrent:receipts:queue",
		deadLetterKey: "machrent:receipts:deadletter",
		pollTimeout:   time.Second,
		logger:        l,
	}
}

// Enqueue schedules delivery of a receipt.
func (w *ReceiptWorker) Enqueue(ctx context.Context, receipt models.Receipt) error {
	if receipt.RentalID == "" {
		return errors.New("receipt without rental id")
	}
	if receipt.ChatID == 0 {
		return errors.New("receipt without chat id")
	}
	return w.push(ctx, ReceiptTask{Receipt: receipt, CreatedAt: time.Now()})
}

// HandleEvent subscribes the worker to rental_submitted events.
func (w *ReceiptWorker) HandleEvent(event *events.Event) error {
	var payload events.WorkflowEventPayload
	if err := event.Decode(&payload); err != nil {
		return err
	}
	if payload.Receipt == nil || payload.Receipt.ChatID == 0 {
		return nil
	}
	return w.Enqueue(context.Background(), *payload.Receipt)
}

func (w *ReceiptWorker) push(ctx context.Context, task ReceiptTask) error {
	if w.redis != nil {
		data, err := json.Marshal(task)
		if err != nil {
			return errors.Wrap(err, "encode receipt task")
		}
		err = w.redis.LPush(ctx, w.redisQueueKey, data).Err()
		if err == nil {
			return nil
		}
		w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
	}

	select {
	case w.queue <- task:
		return nil
	default:
		metrics.IncReceipt("dropped")
		return errors.Newf("receipt queue full, receipt %s dropped", task.Receipt.RentalID)
	}
}

// Start runs the delivery loop until ctx is done, then waits for scheduled
// retries to settle.
func (w *ReceiptWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("receipt worker started")
	defer w.logger.Info().Msg("receipt worker stopped")
	defer w.wg.Wait()

	for {
		if w.redis == nil {
			select {
			case <-ctx.Done():
				return
			case t := <-w.queue:
				w.process(ctx, t)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.process(ctx, t)
			continue
		default:
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.process(ctx, t)
		}
	}
}

func (w *ReceiptWorker) tryRedis(ctx context.Context) (ReceiptTask, bool) {
	res, err := w.redis.BRPop(ctx, w.pollTimeout, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.logger.Warn().Err(err).Msg("redis BRPOP error")
			// back off so a dead Redis does not spin the loop
			select {
			case <-ctx.Done():
			case <-time.After(w.pollTimeout):
			}
		}
		return ReceiptTask{}, false
	}
	if len(res) != 2 {
		return ReceiptTask{}, false
	}
	var task ReceiptTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis receipt task")
		return ReceiptTask{}, false
	}
	return task, true
}

func (w *ReceiptWorker) process(ctx context.Context, task ReceiptTask) {
	log := w.logger.With().Str("rental_id", task.Receipt.RentalID).Int("attempt", task.Attempt+1).Logger()

	if err := w.sender.SendReceipt(ctx, task.Receipt); err != nil {
		w.retryOrFail(ctx, task, err, &log)
		return
	}
	metrics.IncReceipt("sent")
	log.Info().Int64("chat_id", task.Receipt.ChatID).Msg("receipt delivered")
}

func (w *ReceiptWorker) retryOrFail(ctx context.Context, task ReceiptTask, cause error, log *zerolog.Logger) {
	task.Attempt++
	task.LastError = cause.Error()
	if w.retryPolicy.Exhausted(task.Attempt) {
		log.Error().Err(cause).Msg("receipt delivery failed permanently")
		metrics.IncReceipt("failed")
		w.pushDeadLetter(ctx, task)
		return
	}

	delay := w.retryPolicy.NextDelay(task.Attempt)
	log.Warn().Err(cause).Dur("retry_in", delay).Msg("receipt delivery failed")
	metrics.IncReceipt("retry")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			// keep it for the next run when Redis is there
			if w.redis != nil {
				_ = w.push(context.Background(), task)
			}
		case <-timer.C:
			if err := w.push(ctx, task); err != nil {
				log.Error().Err(err).Msg("requeue receipt")
			}
		}
	}()
}

func (w *ReceiptWorker) pushDeadLetter(ctx context.Context, task ReceiptTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Msg("deadletter push")
	}
}
