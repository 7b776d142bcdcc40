package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/facetally/internal/adapters/faceclient"
	"github.com/okian/facetally/internal/adapters/registrystore"
	"github.com/okian/facetally/internal/enroll"
	"github.com/okian/facetally/pkg/logger"
)

// Default configuration constants.
const (
	defaultFaceSize = 160
	defaultTimeout  = 30 * time.Second
	defaultWorkers  = 4
	defaultRunLimit = 30 * time.Minute
)

func main() {
	var (
		usersDir  = flag.String("users", "data/users", "Directory with one sub-directory of face crops per identity")
		outPath   = flag.String("out", "data/registry.db", "Registry file to write")
		baseURL   = flag.String("url", "http://localhost:8000", "Base URL of the face service")
		reloadURL = flag.String("reload", "", "Base URL of a running server to reload after saving")
		faceSize  = flag.Int("face-size", defaultFaceSize, "Side of the square crops sent to the face service")
		timeout   = flag.Duration("timeout", defaultTimeout, "Face service request timeout")
		workers   = flag.Int("workers", defaultWorkers, "Concurrent embedding requests")
		verbose   = flag.Bool("verbose", false, "Log every identity")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		enroll.ShowHelp(os.Stdout)
		return
	}

	if err := logger.Init(logger.WithOutput(os.Stderr)); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunLimit)
	defer cancel()

	store, err := registrystore.New(*outPath, registrystore.WithLogger(log))
	if err != nil {
		log.Error(ctx, "invalid registry path", logger.Error(err))
		os.Exit(1)
	}
	faces := faceclient.New(*baseURL,
		faceclient.WithTimeout(*timeout),
		faceclient.WithFaceSize(*faceSize),
		faceclient.WithLogger(log),
	)

	cfg := &enroll.Config{
		UsersDir:  *usersDir,
		OutPath:   *outPath,
		BaseURL:   *baseURL,
		ReloadURL: *reloadURL,
		FaceSize:  *faceSize,
		Timeout:   *timeout,
		Workers:   *workers,
		Verbose:   *verbose,
		Progress:  os.Stderr,
	}
	stats, err := enroll.Run(ctx, cfg, faces, store)
	if stats != nil {
		fmt.Print(enroll.Summary(stats))
	}
	if err != nil {
		log.Error(ctx, "registry build failed", logger.Error(err))
		os.Exit(1)
	}
}
