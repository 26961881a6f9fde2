package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/folio/internal/marketdata"
	"github.com/sawpanic/folio/internal/optimize"
	"github.com/sawpanic/folio/internal/service"
)

// Channel is the subset of *amqp.Channel used by the worker and client.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Optimizer is the subset of service.Service served over the queue.
type Optimizer interface {
	Summaries(ctx context.Context, strategy *optimize.Strategy, p service.Portfolio, opts service.Options) (*service.Response, error)
	Frontier(ctx context.Context, p service.Portfolio, points int, opts service.Options) (*service.FrontierResponse, error)
	Analytics(ctx context.Context, symbol, benchmark string, r marketdata.Range) (*service.AssetAnalytics, error)
}

// OutcomeObserver counts handled deliveries; metrics.Registry implements it.
type OutcomeObserver interface {
	QueueMessage(outcome string)
}

// Delivery outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeInvalid = "invalid"
	OutcomeRetry   = "retry"
)

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Queue       string
	Prefetch    int
	Concurrency int
	// JobTimeout bounds the work on one delivery.
	JobTimeout time.Duration
}

// Worker consumes requests from a durable queue and replies to each request's ReplyTo queue.
type Worker struct {
	ch        Channel
	optimizer Optimizer
	cfg       WorkerConfig
	portfolio service.Portfolio
	observer  OutcomeObserver
	logger    zerolog.Logger
}

// NewWorker creates a worker. observer may be nil.
func NewWorker(ch Channel, optimizer Optimizer, cfg WorkerConfig, observer OutcomeObserver, logger zerolog.Logger) *Worker {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 4
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.Prefetch
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	return &Worker{
		ch:        ch,
		optimizer: optimizer,
		cfg:       cfg,
		portfolio: service.DemoPortfolio(),
		observer:  observer,
		logger:    logger.With().Str("component", "queue_worker").Str("queue", cfg.Queue).Logger(),
	}
}

// Run declares the queue and handles deliveries until ctx is cancelled or the channel closes.
func (w *Worker) Run(ctx context.Context) error {
	if _, err := w.ch.QueueDeclare(w.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare request queue: %w", err)
	}
	if err := w.ch.Qos(w.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := w.ch.Consume(w.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("initialize consumer: %w", err)
	}

	w.logger.Info().Int("concurrency", w.cfg.Concurrency).Msg("Queue worker started")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	defer w.logger.Info().Msg("Queue worker stopped")

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				w.Handle(gctx, msg)
				return nil
			})
		}
	}
}

// Handle processes one delivery: it replies, then acks. Malformed requests are answered
// and rejected without requeue; a failed reply is requeued.
func (w *Worker) Handle(ctx context.Context, msg amqp.Delivery) {
	start := time.Now()
	logger := w.logger.With().Str("cid", msg.CorrelationId).Logger()

	ctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	var req Request
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		logger.Warn().Err(err).Msg("Malformed request")
		if replyErr := w.reply(ctx, msg, Reply{Error: &ReplyError{Code: "invalid_body", Message: err.Error()}}); replyErr != nil {
			logger.Error().Err(replyErr).Msg("Failed to publish error reply")
		}
		// a malformed body never parses, so it is rejected even when the reply failed
		w.settle(logger, msg.Reject(false), OutcomeInvalid)
		return
	}

	result, rerr := w.dispatch(ctx, req)
	reply := Reply{OK: rerr == nil, Error: rerr}
	if rerr == nil {
		body, err := json.Marshal(result)
		if err != nil {
			reply = Reply{Error: &ReplyError{Code: "internal_error", Message: err.Error()}}
		} else {
			reply.Result = body
		}
	}

	if err := w.reply(ctx, msg, reply); err != nil {
		logger.Error().Err(err).Msg("Failed to publish reply")
		w.settle(logger, msg.Nack(false, true), OutcomeRetry)
		return
	}

	outcome := OutcomeOK
	if !reply.OK {
		outcome = OutcomeError
	}
	w.settle(logger, msg.Ack(false), outcome)
	logger.Info().Str("kind", req.Kind).Bool("ok", reply.OK).Dur("duration", time.Since(start)).Msg("Request handled")
}

func (w *Worker) settle(logger zerolog.Logger, err error, outcome string) {
	if err != nil {
		logger.Error().Err(err).Msg("Failed to settle delivery")
	}
	if w.observer != nil {
		w.observer.QueueMessage(outcome)
	}
}

func (w *Worker) reply(ctx context.Context, msg amqp.Delivery, reply Reply) error {
	if msg.ReplyTo == "" {
		w.logger.Warn().Str("cid", msg.CorrelationId).Msg("Request has no reply queue, dropping reply")
		return nil
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return w.ch.PublishWithContext(ctx, "", msg.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: msg.CorrelationId,
		Body:          body,
		Timestamp:     time.Now(),
	})
}

func (w *Worker) dispatch(ctx context.Context, req Request) (interface{}, *ReplyError) {
	portfolio := w.portfolio
	if req.Portfolio != nil {
		portfolio = *req.Portfolio
	}

	var rng marketdata.Range
	if req.Range != "" {
		r, err := marketdata.ParseRange(string(req.Range))
		if err != nil {
			return nil, replyError(err)
		}
		rng = r
	}
	opts := service.Options{Range: rng, Constraints: req.Constraints}

	switch req.Kind {
	case KindOptimization, "":
		var strategy *optimize.Strategy
		if req.Strategy != "" {
			s, err := optimize.ParseStrategy(req.Strategy)
			if err != nil {
				return nil, replyError(err)
			}
			strategy = &s
		}
		resp, err := w.optimizer.Summaries(ctx, strategy, portfolio, opts)
		if err != nil {
			return nil, replyError(err)
		}
		if strategy != nil {
			if _, err := resp.Selected(); err != nil {
				return nil, replyError(err)
			}
		}
		return resp, nil

	case KindFrontier:
		resp, err := w.optimizer.Frontier(ctx, portfolio, req.Points, opts)
		if err != nil {
			return nil, replyError(err)
		}
		return resp, nil

	case KindAnalytics:
		resp, err := w.optimizer.Analytics(ctx, req.Symbol, req.Benchmark, rng)
		if err != nil {
			return nil, replyError(err)
		}
		return resp, nil

	default:
		return nil, &ReplyError{Code: "unknown_kind", Message: fmt.Sprintf("unknown request kind %q", req.Kind)}
	}
}

// replyError maps domain errors to the same codes the HTTP API uses.
func replyError(err error) *ReplyError {
	switch {
	case errors.Is(err, service.ErrStrategyNotFound), errors.Is(err, optimize.ErrUnknownStrategy):
		return &ReplyError{Code: "strategy_not_found", Message: "Strategy not found"}
	case errors.Is(err, marketdata.ErrUnknownRange):
		return &ReplyError{Code: "invalid_range", Message: err.Error()}
	case errors.Is(err, service.ErrEmptySymbol):
		return &ReplyError{Code: "invalid_symbol", Message: err.Error()}
	case errors.Is(err, marketdata.ErrNoData):
		return &ReplyError{Code: "no_data", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &ReplyError{Code: "timeout", Message: "request timed out"}
	default:
		return &ReplyError{Code: "internal_error", Message: err.Error()}
	}
}
