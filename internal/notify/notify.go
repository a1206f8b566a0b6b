// Package notify defines the outbound notification contract.
//
// The platform commits domain state first and dispatches after; a failed
// dispatch is reported to the caller as a warning and never rolls back the
// state change it follows.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kalvisk/namura/internal/metrics"
)

// Template identifiers for outbound mail.
const (
	TemplateLeaseInvitation  = "lease_invitation"
	TemplateMemberInvitation = "member_invitation"
	TemplateInvoiceSent      = "invoice_sent"
)

var ErrDispatchFailed = errors.New("notify: dispatch failed")

// Dispatcher sends a templated notification to a recipient address.
// Implementations must be safe for concurrent use.
type Dispatcher interface {
	Send(ctx context.Context, templateID, recipient string, data map[string]string) error
}

// LogDispatcher logs every dispatch instead of delivering it. It stands in
// for the real mail collaborator in development and staging.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d *LogDispatcher) Send(ctx context.Context, templateID, recipient string, data map[string]string) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification dispatched",
		"template", templateID,
		"recipient", recipient,
		"fields", len(data),
	)
	metrics.NotificationsTotal.WithLabelValues(templateID, "ok").Inc()
	return nil
}

// Recorder captures dispatches for tests.
type Recorder struct {
	mu   sync.Mutex
	Sent []Recorded
	// Fail makes every Send return ErrDispatchFailed.
	Fail bool
}

// Recorded is one captured dispatch.
type Recorded struct {
	TemplateID string
	Recipient  string
	Data       map[string]string
}

func (r *Recorder) Send(ctx context.Context, templateID, recipient string, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		metrics.NotificationsTotal.WithLabelValues(templateID, "failed").Inc()
		return ErrDispatchFailed
	}
	r.Sent = append(r.Sent, Recorded{TemplateID: templateID, Recipient: recipient, Data: data})
	metrics.NotificationsTotal.WithLabelValues(templateID, "ok").Inc()
	return nil
}
