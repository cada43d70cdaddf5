package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docpublisher/internal/artifact"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
)

// DirectoryTarget serves the site from a local directory. Deploys unpack
// into a sibling staging directory and swap it into place with renames.
type DirectoryTarget struct {
	Path   string
	Logger *slog.Logger
}

// Name implements Target.
func (d *DirectoryTarget) Name() string { return "directory" }

// Configure implements Target.
func (d *DirectoryTarget) Configure(context.Context) error {
	if d.Path == "" {
		return fmt.Errorf("directory target path is empty")
	}
	return os.MkdirAll(filepath.Dir(d.Path), 0o750)
}

// Deploy implements Target.
func (d *DirectoryTarget) Deploy(_ context.Context, archive string, a artifact.Artifact) (Deployment, error) {
	stage := d.Path + "_stage"
	prev := d.Path + ".prev"
	if err := os.RemoveAll(stage); err != nil {
		return Deployment{}, fmt.Errorf("clear staging: %w", err)
	}
	if err := artifact.Unpack(archive, stage); err != nil {
		_ = os.RemoveAll(stage)
		return Deployment{}, err
	}

	changed := true
	if cur, err := artifact.FromDir(d.Path); err == nil && cur.Digest == a.Digest {
		changed = false
	}

	if err := os.RemoveAll(prev); err != nil {
		return Deployment{}, fmt.Errorf("remove previous backup: %w", err)
	}
	if _, err := os.Stat(d.Path); err == nil {
		if err := os.Rename(d.Path, prev); err != nil {
			return Deployment{}, fmt.Errorf("backup existing site: %w", err)
		}
	}
	if err := os.Rename(stage, d.Path); err != nil {
		// put the old site back so the target keeps serving something
		_ = os.Rename(prev, d.Path)
		return Deployment{}, fmt.Errorf("promote staging: %w", err)
	}
	if err := os.RemoveAll(prev); err != nil {
		d.logger().Warn("Failed to remove previous site", logfields.Path(prev), logfields.Error(err))
	}
	return Deployment{Location: d.Path, Changed: changed}, nil
}

func (d *DirectoryTarget) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
