package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ppwm/matcher-server-go/internal/config"
	"github.com/ppwm/matcher-server-go/internal/model"
	"github.com/ppwm/matcher-server-go/internal/repository"
	"github.com/ppwm/matcher-server-go/internal/sse"
	"github.com/ppwm/matcher-server-go/internal/util"
)

// ErrNotificationClaimed is returned by Deliver when another sender holds the row.
var ErrNotificationClaimed = errors.New("notification claimed by another sender")

// Sender delivers a pair notification to its recipients.
type Sender interface {
	Send(ctx context.Context, n model.PairNotification) error
}

// EventPublisher pushes live events to a login's open streams.
type EventPublisher interface {
	Publish(ctx context.Context, login string, event sse.Event) error
}

// CompletionLister finds completed pairs whose notification was never recorded.
type CompletionLister interface {
	PendingCompletions(ctx context.Context, limit int) ([]model.Completion, error)
}

// PairedEvent is the payload of the "paired" stream event.
type PairedEvent struct {
	Code   string   `json:"code"`
	Logins []string `json:"logins"`
}

// Notifier records one outbox row per completed code and delivers it on a
// worker pool. Delivery never blocks the bind that triggered it.
type Notifier struct {
	repo        repository.PairNotificationRepository
	completions CompletionLister
	sender      Sender
	publisher   EventPublisher
	workers     int
	maxAttempts int
	newID       func() string

	queue  chan model.PairNotification
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewNotifier(
	repo repository.PairNotificationRepository,
	completions CompletionLister,
	sender Sender,
	publisher EventPublisher,
	workers int,
	maxAttempts int,
) *Notifier {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Notifier{
		repo:        repo,
		completions: completions,
		sender:      sender,
		publisher:   publisher,
		workers:     workers,
		maxAttempts: maxAttempts,
		newID:       uuid.NewString,
		queue:       make(chan model.PairNotification, config.NotifyQueueSize),
	}
}

func (n *Notifier) Start() {
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.work()
	}
	log.Info().Int("workers", n.workers).Msg("notifier started")
}

// Stop drains queued deliveries and waits for the workers to finish.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	n.wg.Wait()
	log.Info().Msg("notifier stopped")
}

// OnComplete is the CompletionFunc handed to the registry.
func (n *Notifier) OnComplete(ctx context.Context, c model.Completion) {
	logins := c.Logins()

	notification, created, err := n.repo.Create(ctx, model.CreatePairNotificationParams{
		ID:         n.newID(),
		CodeID:     c.Code.ID,
		CodeValue:  c.Code.Value,
		Recipients: c.Emails(),
		Names:      logins,
	})
	if err != nil {
		log.Error().Err(err).Str("code", util.MaskCode(c.Code.Value)).Msg("failed to record pair notification")
		return
	}
	if !created {
		log.Warn().
			Str("code", util.MaskCode(c.Code.Value)).
			Str("notificationId", notification.ID).
			Msg("pair notification already recorded")
		return
	}

	log.Info().
		Str("code", util.MaskCode(c.Code.Value)).
		Strs("logins", logins).
		Str("notificationId", notification.ID).
		Msg("pair completed")

	n.enqueue(*notification)
	n.publishPaired(ctx, c)
}

// Deliver claims one notification, sends it and records the outcome.
func (n *Notifier) Deliver(ctx context.Context, notification model.PairNotification) error {
	return n.deliver(ctx, notification, time.Now().Add(-config.NotifyRetryInterval))
}

func (n *Notifier) deliver(ctx context.Context, notification model.PairNotification, staleBefore time.Time) error {
	claimed, err := n.repo.Claim(ctx, notification.ID, staleBefore)
	if err != nil {
		log.Error().Err(err).Str("notificationId", notification.ID).Msg("failed to claim notification")
		return err
	}
	if !claimed {
		log.Debug().Str("notificationId", notification.ID).Msg("notification already claimed, skipping")
		return ErrNotificationClaimed
	}

	sendCtx, cancel := context.WithTimeout(ctx, config.NotifySendTimeout)
	defer cancel()

	if err := n.sender.Send(sendCtx, notification); err != nil {
		log.Warn().
			Err(err).
			Str("notificationId", notification.ID).
			Int("attempt", notification.Attempts+1).
			Msg("pair notification delivery failed")
		if markErr := n.repo.MarkFailed(ctx, notification.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Str("notificationId", notification.ID).Msg("failed to mark notification failed")
		}
		return err
	}

	if err := n.repo.MarkSent(ctx, notification.ID); err != nil {
		log.Error().Err(err).Str("notificationId", notification.ID).Msg("failed to mark notification sent")
		return err
	}

	log.Info().
		Str("notificationId", notification.ID).
		Strs("recipients", notification.Recipients).
		Msg("pair notification sent")
	return nil
}

// RetryPending records notifications for completed codes that have none, then
// redelivers failed rows under the attempt limit and pending or in-flight rows
// older than staleAfter. It returns how many were sent.
func (n *Notifier) RetryPending(ctx context.Context, staleAfter time.Duration) (int64, error) {
	if err := n.recoverCompletions(ctx); err != nil {
		return 0, err
	}

	staleBefore := time.Now().Add(-staleAfter)
	notifications, err := n.repo.FindRetryable(ctx, n.maxAttempts, staleBefore, config.NotifyRetryBatch)
	if err != nil {
		return 0, err
	}

	var sent int64
	for _, notification := range notifications {
		if ctx.Err() != nil {
			break
		}
		if err := n.deliver(ctx, notification, staleBefore); err == nil {
			sent++
		}
	}
	return sent, nil
}

func (n *Notifier) recoverCompletions(ctx context.Context) error {
	if n.completions == nil {
		return nil
	}

	completions, err := n.completions.PendingCompletions(ctx, config.NotifyRetryBatch)
	if err != nil {
		return fmt.Errorf("recover completions: %w", err)
	}
	for _, c := range completions {
		log.Warn().Str("code", util.MaskCode(c.Code.Value)).Msg("recording missed pair completion")
		n.OnComplete(ctx, c)
	}
	return nil
}

func (n *Notifier) enqueue(notification model.PairNotification) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		log.Warn().Str("notificationId", notification.ID).Msg("notifier stopped, leaving notification for retry")
		return
	}

	select {
	case n.queue <- notification:
	default:
		log.Warn().Str("notificationId", notification.ID).Msg("notification queue full, leaving for retry")
	}
}

func (n *Notifier) work() {
	defer n.wg.Done()
	for notification := range n.queue {
		_ = n.Deliver(context.Background(), notification)
	}
}

func (n *Notifier) publishPaired(ctx context.Context, c model.Completion) {
	if n.publisher == nil {
		return
	}

	data, err := json.Marshal(PairedEvent{Code: c.Code.Value, Logins: c.Logins()})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal paired event")
		return
	}

	event := sse.Event{Type: sse.EventPaired, Data: data}
	for _, login := range c.Logins() {
		if err := n.publisher.Publish(ctx, login, event); err != nil {
			log.Warn().Err(err).Str("login", login).Msg("failed to publish paired event")
		}
	}
}
