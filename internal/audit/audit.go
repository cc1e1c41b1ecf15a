// Package audit records security events raised by the access-control
// gates. Recording is best effort: it must never fail the request that
// triggered it.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tixgate/tixgate/internal/model"
)

const sinkTimeout = 3 * time.Second

// EventStore is the slice of the config store the recorder needs.
type EventStore interface {
	InsertSecurityEvent(ctx context.Context, ev *model.SecurityEvent) error
}

// Recorder persists security events and, when a sink URL is configured,
// mirrors them to an external collector.
type Recorder struct {
	store   EventStore
	sinkURL string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Recorder. An empty sinkURL disables the external mirror.
func New(store EventStore, sinkURL string, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		sinkURL: sinkURL,
		client:  &http.Client{Timeout: sinkTimeout},
		logger:  logger,
		now:     time.Now,
	}
}

// Record persists one security event. Persistence and sink failures are
// logged and swallowed; the caller's request proceeds either way.
func (r *Recorder) Record(ctx context.Context, eventType, severity, sourceAddr, userAgent string, details map[string]any) {
	if r == nil {
		return
	}

	ev := &model.SecurityEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Severity:   severity,
		SourceAddr: sourceAddr,
		UserAgent:  userAgent,
		Details:    details,
		CreatedAt:  r.now().UTC(),
	}

	if r.store != nil {
		if err := r.store.InsertSecurityEvent(ctx, ev); err != nil {
			r.logger.Warn("failed to persist security event", "type", eventType, "error", err)
		}
	}

	if r.sinkURL != "" {
		r.mirror(ev)
	}
}

// mirror POSTs the event to the external sink. Network issues are
// expected and fail silently beyond a log line.
func (r *Recorder) mirror(ev *model.SecurityEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, r.sinkURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("security event sink unreachable", "error", err)
		return
	}
	resp.Body.Close()
}
