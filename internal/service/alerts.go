package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/taskfleet/taskfleet/internal/domain/alert"
	"github.com/taskfleet/taskfleet/internal/port/broker"
	"github.com/taskfleet/taskfleet/internal/port/journal"
	"github.com/taskfleet/taskfleet/internal/port/notifier"
)

// AlertPublisher publishes alerts to the broker, journals them, and
// fans them out to the notifier channels named on each alert. It
// satisfies the worker's alert sink.
type AlertPublisher struct {
	queue           broker.Broker
	journal         journal.Store
	notifiers       map[string]notifier.Notifier
	defaultChannels []string
}

// NewAlertPublisher creates a publisher. The journal may be nil.
// Alerts without explicit channels go to defaultChannels.
func NewAlertPublisher(queue broker.Broker, defaultChannels []string, notifiers ...notifier.Notifier) *AlertPublisher {
	byName := make(map[string]notifier.Notifier, len(notifiers))
	for _, n := range notifiers {
		byName[n.Name()] = n
	}
	return &AlertPublisher{
		queue:           queue,
		notifiers:       byName,
		defaultChannels: defaultChannels,
	}
}

// SetJournal attaches the audit journal.
func (p *AlertPublisher) SetJournal(j journal.Store) { p.journal = j }

// Publish sends the alert to the broker and then to every named
// channel concurrently. Notifier failures are logged, not returned: a
// dead channel must never fail the job that raised the alert.
func (p *AlertPublisher) Publish(ctx context.Context, a alert.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := p.queue.Publish(ctx, broker.SubjectAlerts, data); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	if p.journal != nil {
		if err := p.journal.AppendAlert(ctx, a); err != nil {
			slog.Warn("journal alert failed", "job_id", a.JobID, "error", err)
		}
	}

	channels := a.Channels
	if len(channels) == 0 {
		channels = p.defaultChannels
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range channels {
		n, ok := p.notifiers[name]
		if !ok {
			slog.Warn("unknown alert channel", "channel", name, "job_id", a.JobID)
			continue
		}
		g.Go(func() error {
			err := n.Send(gctx, notifier.Notification{
				Title:   a.Title,
				Message: a.Message,
				Level:   string(a.Severity),
				Source:  a.Source,
			})
			if err != nil {
				slog.Warn("notifier send failed", "channel", n.Name(), "job_id", a.JobID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return nil
}
