package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Retrier redelivers pair notifications that failed or were never dispatched.
type Retrier interface {
	RetryPending(ctx context.Context, staleAfter time.Duration) (int64, error)
}

type NotificationRetryJob struct {
	retrier  Retrier
	interval time.Duration
	timeout  time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

func NewNotificationRetryJob(retrier Retrier, interval time.Duration) *NotificationRetryJob {
	return &NotificationRetryJob{
		retrier:  retrier,
		interval: interval,
		timeout:  interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (j *NotificationRetryJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("notification retry job started")
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (j *NotificationRetryJob) Stop() {
	close(j.done)
	<-j.stopped
	log.Info().Msg("notification retry job stopped")
}

func (j *NotificationRetryJob) run() {
	defer close(j.stopped)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.retry()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.retry()
		}
	}
}

func (j *NotificationRetryJob) retry() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	sent, err := j.retrier.RetryPending(ctx, j.interval)
	if err != nil {
		log.Error().Err(err).Msg("failed to retry pair notifications")
	} else if sent > 0 {
		log.Info().Int64("count", sent).Msg("redelivered pair notifications")
	}
}
