package enroll_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/facetally/internal/adapters/faceclient"
	"github.com/okian/facetally/internal/adapters/registrystore"
	"github.com/okian/facetally/internal/domain/embedding"
	"github.com/okian/facetally/internal/domain/registry"
	"github.com/okian/facetally/internal/enroll"
	"github.com/okian/facetally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeEmbedder maps file contents to vectors: "alice" -> x axis, "bob" ->
// y axis, "broken" -> undecodable, "down" -> service error.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) EmbedImage(_ context.Context, data []byte) (embedding.Vector, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	switch string(data) {
	case "alice":
		return embedding.Vector{1, 0, 0}, nil
	case "alice-2":
		return embedding.Vector{0.8, 0.6, 0}, nil
	case "bob":
		return embedding.Vector{0, 1, 0}, nil
	case "broken":
		return nil, fmt.Errorf("%w: not an image", faceclient.ErrUndecodable)
	}
	return nil, fmt.Errorf("%w: unavailable", faceclient.ErrService)
}

type recordingSaver struct {
	saved *registry.Snapshot
}

func (r *recordingSaver) Save(_ context.Context, snap *registry.Snapshot) error {
	r.saved = snap
	return nil
}

func writeImages(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func config(dir string) *enroll.Config {
	return &enroll.Config{
		UsersDir: dir,
		OutPath:  filepath.Join(dir, "registry.db"),
		Timeout:  time.Second,
		Workers:  2,
	}
}

func TestScan(t *testing.T) {
	Convey("Given a users directory", t, func() {
		dir := t.TempDir()
		writeImages(t, dir, map[string]string{
			"Alice/2.jpg":       "alice",
			"Alice/1.PNG":       "alice",
			"Alice/notes.txt":   "x",
			"Jos\u00e9/a.jpeg":  "jose",
			"Jose\u0301/b.jpeg": "jose",
			".cache/c.jpg":      "x",
			"readme.jpg":        "x",
		})

		Convey("When scanning", func() {
			people, err := enroll.Scan(dir)

			Convey("Then only identity directories with images count", func() {
				So(err, ShouldBeNil)
				So(people, ShouldHaveLength, 2)
				So(people["Alice"], ShouldResemble, []string{
					filepath.Join(dir, "Alice", "1.PNG"),
					filepath.Join(dir, "Alice", "2.jpg"),
				})
			})

			Convey("And both spellings of one name share an entry", func() {
				So(people["Jos\u00e9"], ShouldHaveLength, 2)
			})
		})
	})

	Convey("Given a missing directory", t, func() {
		_, err := enroll.Scan(filepath.Join(t.TempDir(), "missing"))

		Convey("Then it is reported", func() {
			So(errors.Is(err, enroll.ErrNoUsersDir), ShouldBeTrue)
		})
	})
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given two identities and one without usable images", t, func() {
		dir := t.TempDir()
		writeImages(t, dir, map[string]string{
			"Alice/1.jpg": "alice",
			"Alice/2.jpg": "alice-2",
			"Alice/3.jpg": "broken",
			"Bob/1.jpg":   "bob",
			"Carol/1.jpg": "broken",
		})
		emb := &fakeEmbedder{}
		saver := &recordingSaver{}

		Convey("When building", func() {
			stats, err := enroll.Run(ctx, config(dir), emb, saver)

			Convey("Then one centroid per usable identity is saved", func() {
				So(err, ShouldBeNil)
				So(saver.saved.Names(), ShouldResemble, []string{"Alice", "Bob"})
				So(stats.Identities, ShouldEqual, 2)
				So(stats.ImagesEmbedded, ShouldEqual, 3)
				So(stats.ImagesUnusable, ShouldEqual, 2)
				So(stats.Skipped, ShouldResemble, []string{"Carol"})
				So(emb.calls, ShouldEqual, 5)
			})

			Convey("And Alice's centroid is the normalized mean", func() {
				c := saver.saved.Centroids()["Alice"]
				So(embedding.IsUnit(c, 1e-6), ShouldBeTrue)
				want := embedding.Normalize(embedding.Vector{1.8, 0.6, 0})
				So(c[0], ShouldAlmostEqual, want[0], 1e-6)
				So(c[1], ShouldAlmostEqual, want[1], 1e-6)
			})
		})
	})

	Convey("Given the face service is down", t, func() {
		dir := t.TempDir()
		writeImages(t, dir, map[string]string{
			"Alice/1.jpg": "alice",
			"Bob/1.jpg":   "down",
		})
		saver := &recordingSaver{}

		Convey("Then the build fails and nothing is saved", func() {
			_, err := enroll.Run(ctx, config(dir), &fakeEmbedder{}, saver)
			So(errors.Is(err, faceclient.ErrService), ShouldBeTrue)
			So(saver.saved, ShouldBeNil)
		})
	})

	Convey("Given no usable image at all", t, func() {
		dir := t.TempDir()
		writeImages(t, dir, map[string]string{"Alice/1.jpg": "broken"})
		saver := &recordingSaver{}

		Convey("Then the build fails and nothing is saved", func() {
			_, err := enroll.Run(ctx, config(dir), &fakeEmbedder{}, saver)
			So(errors.Is(err, enroll.ErrNoIdentities), ShouldBeTrue)
			So(saver.saved, ShouldBeNil)
		})
	})

	Convey("Given a real store and a running server to reload", t, func() {
		dir := t.TempDir()
		writeImages(t, dir, map[string]string{
			"Alice/1.jpg": "alice",
			"Bob/1.jpg":   "bob",
		})
		cfg := config(dir)
		store, err := registrystore.New(cfg.OutPath)
		So(err, ShouldBeNil)

		var reloads atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/registry/reload" {
				http.NotFound(w, r)
				return
			}
			reloads.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"success","users":["Alice","Bob"]}`))
		}))
		defer srv.Close()
		cfg.ReloadURL = srv.URL

		Convey("When building", func() {
			stats, err := enroll.Run(ctx, cfg, &fakeEmbedder{}, store)

			Convey("Then the store holds the registry and the server reloaded", func() {
				So(err, ShouldBeNil)
				loaded, err := store.Load(ctx)
				So(err, ShouldBeNil)
				So(loaded, ShouldHaveLength, 2)
				So(reloads.Load(), ShouldEqual, int32(1))
				So(stats.ReloadedServing, ShouldResemble, []string{"Alice", "Bob"})
				So(enroll.Summary(stats), ShouldContainSubstring, "identities: 2")
			})
		})
	})

	Convey("Given a server whose reload fails", t, func() {
		dir := t.TempDir()
		writeImages(t, dir, map[string]string{"Alice/1.jpg": "alice"})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":"reload_failed","message":"store unreadable"}`))
		}))
		defer srv.Close()
		cfg := config(dir)
		cfg.ReloadURL = srv.URL
		saver := &recordingSaver{}

		Convey("Then the registry is still saved and the reload error returned", func() {
			_, err := enroll.Run(ctx, cfg, &fakeEmbedder{}, saver)
			So(errors.Is(err, enroll.ErrReload), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "store unreadable")
			So(saver.saved, ShouldNotBeNil)
		})
	})
}

func TestShowHelp(t *testing.T) {
	Convey("Given the help text", t, func() {
		var b strings.Builder
		enroll.ShowHelp(&b)

		Convey("Then every flag is listed", func() {
			for _, flag := range []string{"-users", "-out", "-url", "-reload", "-face-size", "-timeout", "-workers", "-verbose"} {
				So(b.String(), ShouldContainSubstring, flag)
			}
		})
	})
}
