// Package publish deploys a built site to its hosting target.
//
// Publishing happens in three phases: the target is configured, the artifact
// is packaged into a single archive (upload), and the archive is deployed
// while the deploy lock for the target group is held.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docpublisher/internal/artifact"
	"git.home.luguber.info/inful/docpublisher/internal/deploylock"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
)

var (
	ErrConfigure = errors.New("configure publish target")
	ErrUpload    = errors.New("upload artifact")
	ErrDeploy    = errors.New("deploy artifact")
	ErrLock      = errors.New("deploy lock")
)

// Deployment describes a finished deploy.
type Deployment struct {
	Target   string
	Location string
	Archive  string
	Digest   string
	// Commit is set by targets that deploy through version control.
	Commit string
	// Changed is false when the target already served identical content.
	Changed    bool
	LockWaited time.Duration
}

// Target is a hosting target.
type Target interface {
	Name() string
	// Configure prepares the target and validates that it is reachable.
	Configure(ctx context.Context) error
	// Deploy replaces the served site with the contents of archive.
	Deploy(ctx context.Context, archive string, a artifact.Artifact) (Deployment, error)
}

// Publisher runs the publish phases against one target.
type Publisher struct {
	Target     Target
	Locker     deploylock.Locker
	Lock       deploylock.Options
	Group      string
	ArchiveDir string
	Logger     *slog.Logger
}

// Publish configures the target, packages a and deploys it under the
// deploy lock. Once the lock is held the deploy runs to completion even if
// ctx is cancelled, so a target is never left half-replaced.
func (p *Publisher) Publish(ctx context.Context, a artifact.Artifact, runID string) (Deployment, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(logfields.Step("publish"), slog.String("target", p.Target.Name()))

	if err := p.Target.Configure(ctx); err != nil {
		return Deployment{}, fmt.Errorf("%w: %w", ErrConfigure, err)
	}

	archive, err := artifact.Package(a, p.ArchiveDir)
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	logger.Info("Artifact uploaded", logfields.Path(archive), slog.String("digest", a.ShortDigest()), logfields.Count(a.FileCount))

	opts := p.Lock
	opts.Logger = logger
	lease, err := deploylock.Acquire(ctx, p.Locker, p.Group, runID, opts)
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %w", ErrLock, err)
	}
	defer func() {
		if err := lease.Release(); err != nil {
			logger.Warn("Failed to release deploy lock", logfields.Group(p.Group), logfields.Error(err))
		}
	}()

	d, err := p.Target.Deploy(context.WithoutCancel(ctx), archive, a)
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %w", ErrDeploy, err)
	}
	d.Target = p.Target.Name()
	d.Archive = archive
	d.Digest = a.Digest
	d.LockWaited = lease.Waited
	logger.Info("Site deployed", slog.String("location", d.Location), slog.Bool("changed", d.Changed))
	return d, nil
}
