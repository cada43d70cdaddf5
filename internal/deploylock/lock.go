// Package deploylock serializes deployments per deploy-target group.
//
// A lease is held by one holder at a time. Waiters poll with backoff until
// the lease frees or their context ends; holders are never interrupted.
// Every lease carries an expiry so a crashed holder cannot block the group
// forever. A live holder renews its lease every third of the TTL until it
// releases it, so a long deploy keeps the group.
package deploylock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
	"git.home.luguber.info/inful/docpublisher/internal/retry"
)

// Locker is a lease table keyed by group.
type Locker interface {
	// TryAcquire takes the lease for group when it is free, expired, or
	// already owned by holder. It never blocks on other holders.
	TryAcquire(ctx context.Context, group, holder string, ttl time.Duration) (bool, error)
	// Release frees the lease if holder still owns it.
	Release(ctx context.Context, group, holder string) error
	Close() error
}

// Lease is an acquired lock.
type Lease struct {
	Group      string
	Holder     string
	AcquiredAt time.Time
	Waited     time.Duration

	locker Locker
	ttl    time.Duration
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Release stops renewal and frees the lease. It uses a fresh context so a
// cancelled run still hands the target back.
func (l *Lease) Release() error {
	l.once.Do(func() {
		if l.stop != nil {
			close(l.stop)
			<-l.done
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return l.locker.Release(ctx, l.Group, l.Holder)
}

func (l *Lease) renew() {
	defer close(l.done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			ok, err := l.locker.TryAcquire(ctx, l.Group, l.Holder, l.ttl)
			cancel()
			switch {
			case err != nil:
				l.logger.Warn("Failed to renew deploy lock", logfields.Group(l.Group), logfields.Error(err))
			case !ok:
				l.logger.Error("Deploy lock lost to another holder", logfields.Group(l.Group))
				return
			}
		}
	}
}

// Options controls Acquire.
type Options struct {
	TTL time.Duration
	// Backoff spaces acquisition attempts; its MaxRetries is ignored because
	// waiting is bounded by the context alone.
	Backoff retry.Policy
	Logger  *slog.Logger
}

// OptionsFromConfig derives acquisition options from the lock section.
// Polling starts at the configured interval and backs off to eight times it.
func OptionsFromConfig(c config.LockConfig, logger *slog.Logger) Options {
	poll := c.PollDuration()
	return Options{
		TTL:     c.TTLDuration(),
		Backoff: retry.NewPolicy(config.RetryBackoffExponential, poll, 8*poll, 0),
		Logger:  logger,
	}
}

// Acquire blocks until holder owns group's lease or ctx ends.
func Acquire(ctx context.Context, locker Locker, group, holder string, opts Options) (*Lease, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	for attempt := 0; ; attempt++ {
		ok, err := locker.TryAcquire(ctx, group, holder, opts.TTL)
		if err != nil {
			return nil, fmt.Errorf("acquire deploy lock %s: %w", group, err)
		}
		if ok {
			waited := time.Since(start)
			logger.Info("Deploy lock acquired", logfields.Group(group), logfields.DurationMS(float64(waited.Milliseconds())))
			lease := &Lease{
				Group:      group,
				Holder:     holder,
				AcquiredAt: time.Now(),
				Waited:     waited,
				locker:     locker,
				ttl:        opts.TTL,
				logger:     logger,
			}
			if opts.TTL/3 > 0 {
				lease.stop = make(chan struct{})
				lease.done = make(chan struct{})
				go lease.renew()
			}
			return lease, nil
		}
		if attempt == 0 {
			logger.Info("Waiting for deploy lock", logfields.Group(group))
		}
		if err := opts.Backoff.Wait(ctx, attempt+1); err != nil {
			return nil, fmt.Errorf("waiting for deploy lock %s: %w", group, err)
		}
	}
}
