package enroll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/okian/facetally/internal/adapters/faceclient"
	"github.com/okian/facetally/internal/domain/embedding"
	"github.com/okian/facetally/internal/domain/registry"
	"github.com/okian/facetally/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

const defaultWorkers = 4

// ImageEmbedder turns one face crop into a unit vector.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, data []byte) (embedding.Vector, error)
}

// SnapshotSaver persists a built registry.
type SnapshotSaver interface {
	Save(ctx context.Context, snap *registry.Snapshot) error
}

type job struct {
	name string
	path string
}

type result struct {
	job
	vec embedding.Vector
	err error
}

// Run scans cfg.UsersDir, embeds every image, computes one centroid per
// identity and saves the result. Images that cannot be read or decoded are
// skipped, and so are identities left without a usable image. Any other
// failure aborts before the store is written.
func Run(ctx context.Context, cfg *Config, emb ImageEmbedder, store SnapshotSaver) (*Stats, error) {
	log := logger.Get().Named("enroll")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting registry build",
		logger.String("users", cfg.UsersDir),
		logger.String("out", cfg.OutPath),
		logger.String("url", cfg.BaseURL),
		logger.Int("workers", cfg.Workers))

	people, err := Scan(cfg.UsersDir)
	if err != nil {
		return nil, err
	}
	var jobs []job
	names := make([]string, 0, len(people))
	for name, paths := range people {
		names = append(names, name)
		for _, p := range paths {
			jobs = append(jobs, job{name: name, path: p})
		}
	}
	sort.Strings(names)

	results, err := embedAll(ctx, cfg, emb, jobs)
	if err != nil {
		return nil, err
	}

	samples := make(map[string][]embedding.Vector)
	for _, r := range results {
		if r.err != nil {
			stats.ImagesUnusable++
			log.Warn(ctx, "image skipped", logger.String("name", r.name), logger.String("path", r.path), logger.Error(r.err))
			continue
		}
		stats.ImagesEmbedded++
		samples[r.name] = append(samples[r.name], r.vec)
	}
	for _, name := range names {
		if len(samples[name]) == 0 {
			stats.Skipped = append(stats.Skipped, name)
			log.Warn(ctx, "identity has no usable image, skipped", logger.String("name", name))
			continue
		}
		if cfg.Verbose {
			log.Info(ctx, "built embeddings", logger.String("name", name), logger.Int("images", len(samples[name])))
		}
	}
	if len(samples) == 0 {
		return nil, ErrNoIdentities
	}

	snap, err := registry.Build(samples)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, snap); err != nil {
		return nil, err
	}
	stats.Identities = snap.Len()
	log.Info(ctx, "registry saved", logger.String("out", cfg.OutPath), logger.Int("identities", snap.Len()), logger.Int("dim", snap.Dim()))

	stats.Duration = time.Since(stats.StartTime)
	if cfg.ReloadURL != "" {
		users, err := reloadServer(ctx, cfg.ReloadURL, cfg.Timeout)
		if err != nil {
			return stats, err
		}
		stats.ReloadedServing = users
		log.Info(ctx, "server reloaded", logger.String("url", cfg.ReloadURL), logger.Int("identities", len(users)))
	}
	return stats, nil
}

// embedAll embeds jobs with at most cfg.Workers requests in flight. Per-image
// read and decode failures are kept in the result; anything else cancels the
// rest and is returned.
func embedAll(ctx context.Context, cfg *Config, emb ImageEmbedder, jobs []job) ([]result, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	progress := cfg.Progress
	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription(fmt.Sprintf("Embedding faces (%d workers)", workers)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]result, len(jobs))
	semaphore := make(chan struct{}, workers)
	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		errMu.Unlock()
	}

	for i, j := range jobs {
		wg.Add(1)
		go func(idx int, j job) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			defer func() { _ = bar.Add(1) }()

			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			data, err := os.ReadFile(j.path)
			if err != nil {
				results[idx] = result{job: j, err: err}
				return
			}
			vec, err := emb.EmbedImage(ctx, data)
			if err != nil && !skippable(err) {
				fail(fmt.Errorf("%s: %w", j.path, err))
				return
			}
			results[idx] = result{job: j, vec: vec, err: err}
		}(i, j)
	}
	wg.Wait()
	_ = bar.Finish()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func skippable(err error) bool {
	return errors.Is(err, faceclient.ErrUndecodable) || errors.Is(err, faceclient.ErrEmptyCrop)
}
