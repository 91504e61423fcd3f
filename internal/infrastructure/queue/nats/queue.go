package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/resilience"
)

type Queue struct {
	conn            *nats.Conn
	requestSubject  string
	progressSubject string
	executor        *resilience.Executor
}

func New(url, requestSubject string) (*Queue, error) {
	return NewWithOptions(url, requestSubject, Options{})
}

type Options struct {
	ProgressSubject      string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, requestSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	progressSubject := strings.TrimSpace(options.ProgressSubject)
	if progressSubject == "" {
		progressSubject = "analysis.progress"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("contract-risk-analyzer"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:            conn,
		requestSubject:  requestSubject,
		progressSubject: progressSubject,
		executor:        options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishAnalysisRequested(ctx context.Context, req domain.AnalysisRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal analysis request: %w", err)
	}
	return q.publish(ctx, "nats.publish_request", q.requestSubject, payload)
}

// PublishProgress forwards one progress event to <progress subject>.<document id>.
func (q *Queue) PublishProgress(ctx context.Context, event domain.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	return q.publish(ctx, "nats.publish_progress", ProgressSubject(q.progressSubject, event.DocumentID), payload)
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeAnalysisRequested consumes queued requests in the "workers" queue group
// until ctx is done, then drains the subscription.
func (q *Queue) SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, domain.AnalysisRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.requestSubject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		req, err := decodeAnalysisRequest(msg.Data)
		if err != nil {
			slog.Error("analysis_request_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, req); err != nil {
			slog.Error("worker_handler_failed", "document_id", req.DocumentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	return q.waitAndDrain(ctx, sub)
}

// SubscribeProgress delivers progress events of one document (or of all documents
// when documentID is empty) until ctx is done.
func (q *Queue) SubscribeProgress(ctx context.Context, documentID string, handler func(domain.ProgressEvent)) error {
	subject := ProgressSubject(q.progressSubject, documentID)
	sub, err := q.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event domain.ProgressEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("progress_event_decode_failed", "subject", msg.Subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe progress: %w", err)
	}
	return q.waitAndDrain(ctx, sub)
}

func (q *Queue) waitAndDrain(ctx context.Context, sub *nats.Subscription) error {
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func ProgressSubject(prefix, documentID string) string {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return prefix + ".>"
	}
	return prefix + "." + subjectToken(documentID)
}

// subjectToken makes an id safe to use as a single NATS subject token.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		default:
			return r
		}
	}, id)
}

func decodeAnalysisRequest(data []byte) (domain.AnalysisRequest, error) {
	var req domain.AnalysisRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.AnalysisRequest{}, fmt.Errorf("decode analysis request: %w", err)
	}
	if strings.TrimSpace(req.DocumentID) == "" || strings.TrimSpace(req.StorageKey) == "" {
		return domain.AnalysisRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode analysis request", errors.New("document_id and storage_key are required"))
	}
	return req, nil
}
