// Package uploader drives a publish run: it ensures the container
// exists, scans the local folder, uploads the files with a bounded
// worker pool, then rewrites the manifest and the index.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wheelport/wheelport/internal/devmatch"
	"github.com/wheelport/wheelport/internal/index"
	"github.com/wheelport/wheelport/internal/manifest"
	"github.com/wheelport/wheelport/internal/metrics"
	"github.com/wheelport/wheelport/internal/scan"
	"github.com/wheelport/wheelport/internal/store"
)

// Config carries the knobs of a publish run. It is copied into the
// Uploader at construction; changing it afterwards has no effect.
type Config struct {
	// Opener provides store sessions. Required.
	Opener store.Opener

	// Workers bounds concurrent file uploads. Defaults to 4.
	Workers int

	// UpdateIndex regenerates index.html after a successful run.
	UpdateIndex bool

	// PruneDev deletes remote dev builds superseded by an upload.
	PruneDev bool

	// Matcher decides which remote files an upload supersedes.
	// Defaults to devmatch.SeriesMatcher.
	Matcher devmatch.Matcher

	// MaxRetries is how many times a failed attempt is retried.
	// Credential failures are never retried.
	MaxRetries int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
}

// Uploader publishes a local folder of package files to a container.
type Uploader struct {
	opener      store.Opener
	workers     int
	updateIndex bool
	pruneDev    bool
	matcher     devmatch.Matcher
	maxRetries  int
	retryDelay  time.Duration
}

// New builds an Uploader from cfg.
func New(cfg Config) *Uploader {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = devmatch.SeriesMatcher{}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Uploader{
		opener:      cfg.Opener,
		workers:     workers,
		updateIndex: cfg.UpdateIndex,
		pruneDev:    cfg.PruneDev,
		matcher:     matcher,
		maxRetries:  maxRetries,
		retryDelay:  cfg.RetryDelay,
	}
}

// Publish uploads the files of localDir to the container, retrying
// failed attempts up to MaxRetries times with a fixed delay. Every
// attempt runs the full pipeline from scratch, so no state is carried
// across attempts. A credential failure aborts immediately: retrying
// rejected credentials cannot succeed.
func (u *Uploader) Publish(ctx context.Context, localDir, container string) error {
	start := time.Now()
	err := u.publishWithRetry(ctx, localDir, container)
	metrics.PublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PublishesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PublishesTotal.WithLabelValues("success").Inc()
	return nil
}

func (u *Uploader) publishWithRetry(ctx context.Context, localDir, container string) error {
	remaining := u.maxRetries
	for {
		err := u.publishOnce(ctx, localDir, container)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrInvalidCredentials) {
			return err
		}
		if remaining <= 0 {
			return err
		}
		slog.Warn("Publish attempt failed, retrying",
			"error", err,
			"attempts_left", remaining,
			"delay", u.retryDelay,
		)
		remaining--
		metrics.PublishRetriesTotal.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(u.retryDelay):
		}
	}
}

// publishOnce runs a single publish attempt end to end.
func (u *Uploader) publishOnce(ctx context.Context, localDir, container string) error {
	st, err := u.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening store session: %w", err)
	}
	defer st.Close()

	if _, err := st.GetContainer(ctx, container); err != nil {
		if !errors.Is(err, store.ErrContainerNotFound) {
			return fmt.Errorf("checking container %q: %w", container, err)
		}
		if _, err := st.CreateContainer(ctx, container); err != nil {
			return fmt.Errorf("creating container %q: %w", container, err)
		}
		slog.Info("Created container", "container", container)
	}

	remote, err := manifest.Load(ctx, st, container)
	if err != nil {
		return err
	}

	paths, local, err := scan.Folder(localDir)
	if err != nil {
		return err
	}

	merged := manifest.Merge(remote, local)

	if err := u.uploadAll(ctx, paths, container); err != nil {
		return err
	}

	if err := manifest.Save(ctx, st, container, merged); err != nil {
		return err
	}

	if u.updateIndex {
		if err := index.Build(ctx, st, container, merged); err != nil {
			return err
		}
	}
	return nil
}

// uploadAll runs one upload task per file through a worker pool of
// u.workers goroutines. The first task error is kept and returned
// after every task has finished; later tasks are not cancelled, they
// drain on their own.
func (u *Uploader) uploadAll(ctx context.Context, paths []string, container string) error {
	slog.Info("About to upload files", "count", len(paths), "container", container)

	sem := make(chan struct{}, u.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, path := range paths {
		sem <- struct{}{}
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := u.uploadOne(ctx, p, container); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(path)
	}

	wg.Wait()
	return firstErr
}

// uploadOne publishes a single file. Each task opens its own store
// session: provider sessions are not guaranteed safe for concurrent
// use, so tasks never share one.
func (u *Uploader) uploadOne(ctx context.Context, path, container string) error {
	st, err := u.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening store session: %w", err)
	}
	defer st.Close()

	name := filepath.Base(path)

	// Superseded dev builds are collected against the listing taken
	// before this upload, so a fresh dev build never matches itself.
	var prune []string
	if u.pruneDev {
		existing, err := index.PackageNames(ctx, st, container)
		if err != nil {
			return err
		}
		prune = u.matcher.Match(name, existing)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	slog.Info("Uploading",
		"file", path,
		"size_mb", fmt.Sprintf("%.3f", float64(info.Size())/1e6),
	)
	start := time.Now()
	if err := st.UploadObject(ctx, container, name, f, info.Size()); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	metrics.UploadDuration.Observe(time.Since(start).Seconds())
	metrics.FilesUploadedTotal.Inc()
	metrics.BytesUploadedTotal.Add(float64(info.Size()))

	for _, old := range prune {
		slog.Info("Deleting superseded dev build", "object", old)
		if _, err := st.GetObject(ctx, container, old); err != nil {
			if errors.Is(err, store.ErrObjectNotFound) {
				// Another task or an earlier run already removed it.
				continue
			}
			return fmt.Errorf("checking dev build %s: %w", old, err)
		}
		if err := st.DeleteObject(ctx, container, old); err != nil {
			if errors.Is(err, store.ErrObjectNotFound) {
				continue
			}
			return fmt.Errorf("deleting dev build %s: %w", old, err)
		}
		metrics.ObjectsPrunedTotal.Inc()
	}
	return nil
}
