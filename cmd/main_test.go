package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/facetally/internal/adapters/registrystore"
	"github.com/okian/facetally/internal/config"
	"github.com/okian/facetally/internal/domain/embedding"
	"github.com/okian/facetally/internal/domain/registry"
	"github.com/okian/facetally/pkg/logger"
	"github.com/okian/facetally/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New(context.Background())
	cfg.LedgerDir = filepath.Join(dir, "Attendance")
	cfg.RegistryPath = filepath.Join(dir, "registry.db")
	cfg.WorkerCount = 2
	cfg.QueueSize = 4
	return cfg
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return w
}

func TestBuild(t *testing.T) {
	convey.Convey("Given a store with two enrolled identities", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)
		snap, err := registry.NewSnapshot(map[string]embedding.Vector{
			"Alice": {1, 0, 0},
			"Bob":   {0, 1, 0},
		})
		convey.So(err, convey.ShouldBeNil)
		store, err := registrystore.New(cfg.RegistryPath)
		convey.So(err, convey.ShouldBeNil)
		convey.So(store.Save(ctx, snap), convey.ShouldBeNil)

		convey.Convey("When the application is built and started", func() {
			a, err := build(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			convey.So(a.svc.Start(ctx), convey.ShouldBeNil)
			defer func() { _ = a.svc.Stop(ctx) }()

			convey.Convey("Then the registry is served", func() {
				w := get(a.handler, "/registry")
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				var body struct {
					Users []string `json:"users"`
					Dim   int      `json:"dim"`
				}
				convey.So(json.Unmarshal(w.Body.Bytes(), &body), convey.ShouldBeNil)
				convey.So(body.Users, convey.ShouldResemble, []string{"Alice", "Bob"})
				convey.So(body.Dim, convey.ShouldEqual, 3)
			})

			convey.Convey("And the docs and attendance routes are mounted", func() {
				convey.So(get(a.handler, "/openapi.yaml").Code, convey.ShouldEqual, http.StatusOK)
				convey.So(get(a.handler, "/attendance").Code, convey.ShouldEqual, http.StatusOK)
				convey.So(get(a.handler, "/stats").Code, convey.ShouldEqual, http.StatusOK)
			})

			convey.Convey("And the service metrics updater reads its stats", func() {
				convey.So(func() { updateServiceMetrics(a.svc) }, convey.ShouldNotPanic)
			})
		})
	})

	convey.Convey("Given no registry file yet", t, func() {
		cfg := testConfig(t)

		convey.Convey("Then the application starts with an empty registry", func() {
			a, err := build(context.Background(), cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			w := get(a.handler, "/registry")
			convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(w.Body.String(), convey.ShouldContainSubstring, `"users":[]`)
		})
	})

	convey.Convey("Given an invalid engine policy", t, func() {
		cfg := testConfig(t)
		cfg.ConsensusFrames = 0

		convey.Convey("Then building fails", func() {
			_, err := build(context.Background(), cfg, logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then one update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then it ticks at the given interval and stops with its context", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx, 5*time.Millisecond)
				close(done)
			}()
			time.Sleep(30 * time.Millisecond)
			cancel()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("updater did not stop")
			}
			convey.So(metrics.RefreshInterval(), convey.ShouldBeGreaterThan, time.Duration(0))
		})
	})
}
