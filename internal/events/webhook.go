package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Webhook request headers.
const (
	SignatureHeader = "X-ThreatLens-Signature"
	EventHeader     = "X-ThreatLens-Event"
	DeliveryHeader  = "X-ThreatLens-Delivery"
)

// DeliveryRecorder is an optional callback for recording delivery outcomes.
type DeliveryRecorder func(success bool)

// WebhookPublisher POSTs each event as JSON to a fixed set of URLs.
// Deliveries run in the background and are retried with backoff; the body
// is signed with HMAC-SHA256 when a secret is configured.
type WebhookPublisher struct {
	urls       []string
	secret     []byte
	httpClient *http.Client
	delays     []time.Duration // wait before attempts 2..n
	onDelivery DeliveryRecorder
	logger     *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWebhookPublisher creates a publisher for urls.
func NewWebhookPublisher(urls []string, secret string, logger *zap.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		urls:       urls,
		secret:     []byte(secret),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delays:     []time.Duration{1 * time.Second, 5 * time.Second},
		logger:     logger,
	}
}

// SetDeliveryRecorder configures the metrics callback.
func (w *WebhookPublisher) SetDeliveryRecorder(fn DeliveryRecorder) {
	w.onDelivery = fn
}

// PublishAnalysis implements Publisher. It returns once deliveries are
// scheduled; their outcome is logged.
func (w *WebhookPublisher) PublishAnalysis(ctx context.Context, ev AnalysisCompleted) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("webhook publisher closed")
	}

	// Deliveries outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)
	deliveryID := uuid.NewString()
	for _, url := range w.urls {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.deliver(ctx, url, deliveryID, ev.Type, body)
		}()
	}
	return nil
}

// Close stops accepting events and waits for in-flight deliveries.
func (w *WebhookPublisher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.wg.Wait()
	return nil
}

// deliver sends body to url, retrying after each configured delay.
func (w *WebhookPublisher) deliver(ctx context.Context, url, deliveryID, eventType string, body []byte) {
	attempts := len(w.delays) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(w.delays[attempt-2])
		}

		err := w.post(ctx, url, deliveryID, eventType, body)
		if w.onDelivery != nil {
			w.onDelivery(err == nil)
		}
		if err == nil {
			return
		}

		w.logger.Warn("webhook delivery failed",
			zap.String("url", url),
			zap.String("delivery_id", deliveryID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	w.logger.Error("webhook delivery abandoned",
		zap.String("url", url),
		zap.String("delivery_id", deliveryID),
	)
}

func (w *WebhookPublisher) post(ctx context.Context, url, deliveryID, eventType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, eventType)
	req.Header.Set(DeliveryHeader, deliveryID)
	if len(w.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(body, w.secret))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 under secret.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Fanout publishes every event to each of ps and joins their errors.
type Fanout []Publisher

// PublishAnalysis implements Publisher.
func (f Fanout) PublishAnalysis(ctx context.Context, ev AnalysisCompleted) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishAnalysis(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
