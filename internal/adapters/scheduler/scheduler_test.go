package scheduler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/avatarcast/internal/adapters/pool"
	"github.com/okian/avatarcast/internal/adapters/scheduler"
	"github.com/okian/avatarcast/internal/adapters/storage"
	"github.com/okian/avatarcast/internal/domain/model"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte("img"), 0o600); err != nil {
		t.Fatal(err)
	}
}

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (c *countingSource) Discover(context.Context) ([]model.AvatarCandidate, error) {
	c.calls.Add(1)
	return nil, c.err
}

func TestPoolSync(t *testing.T) {
	Convey("Given a pool seeded from storage", t, func() {
		ctx := context.Background()
		root := t.TempDir()
		avail, used := filepath.Join(root, "available"), filepath.Join(root, "used")
		touch(t, avail, "img_001.jpg")
		touch(t, used, "img_009.jpg")

		store := storage.NewLocalStore(avail, used, "")
		seed, err := store.Discover(ctx)
		So(err, ShouldBeNil)
		p := pool.NewInMemoryPool(seed)
		job := scheduler.NewPoolSync(store, p, nil)

		Convey("When new images are dropped into the directory", func() {
			touch(t, avail, "img_002.png")
			touch(t, avail, "notes.txt")
			added, err := job.Sync(ctx)

			Convey("Then only the new image is registered", func() {
				So(err, ShouldBeNil)
				So(added, ShouldEqual, 1)
				stats, _ := p.Stats(ctx)
				So(stats, ShouldResemble, pool.Stats{Available: 2, Used: 1})
			})

			Convey("Then a second sync is a no-op", func() {
				added, err := job.Sync(ctx)
				So(err, ShouldBeNil)
				So(added, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a failing source", t, func() {
		job := scheduler.NewPoolSync(&countingSource{err: errors.New("disk gone")}, pool.NewInMemoryPool(nil), nil)
		_, err := job.Sync(context.Background())
		So(err, ShouldNotBeNil)
	})
}

type staleRegistry struct {
	ttls  []time.Duration
	added atomic.Int32
}

func (r *staleRegistry) Add(context.Context, model.AvatarCandidate) (bool, error) {
	r.added.Add(1)
	return true, nil
}

func (r *staleRegistry) ReleaseStale(_ context.Context, olderThan time.Duration) ([]string, error) {
	r.ttls = append(r.ttls, olderThan)
	return []string{"avatar-01"}, nil
}

func TestPoolSync_StaleReservations(t *testing.T) {
	Convey("Given a registry that tracks reservation age", t, func() {
		ctx := context.Background()
		reg := &staleRegistry{}

		Convey("When the sync has a reservation ttl", func() {
			job := scheduler.NewPoolSync(&countingSource{}, reg, nil, scheduler.WithStaleReservations(30*time.Minute))
			_, err := job.Sync(ctx)

			Convey("Then stale reservations are released on every pass", func() {
				So(err, ShouldBeNil)
				_, err = job.Sync(ctx)
				So(err, ShouldBeNil)
				So(reg.ttls, ShouldResemble, []time.Duration{30 * time.Minute, 30 * time.Minute})
			})
		})

		Convey("When no ttl is configured", func() {
			job := scheduler.NewPoolSync(&countingSource{}, reg, nil)
			_, err := job.Sync(ctx)

			Convey("Then reservations are left alone", func() {
				So(err, ShouldBeNil)
				So(reg.ttls, ShouldBeEmpty)
			})
		})
	})
}

func TestScheduler(t *testing.T) {
	Convey("Given a scheduler on a one second spec", t, func() {
		src := &countingSource{}
		s, err := scheduler.New("@every 1s", scheduler.NewPoolSync(src, pool.NewInMemoryPool(nil), nil), nil)
		So(err, ShouldBeNil)

		s.Start(context.Background())
		time.Sleep(1500 * time.Millisecond)
		So(s.Stop(context.Background()), ShouldBeNil)

		So(src.calls.Load(), ShouldBeGreaterThanOrEqualTo, 1)
	})

	Convey("Given an invalid spec", t, func() {
		_, err := scheduler.New("every now and then", scheduler.NewPoolSync(&countingSource{}, pool.NewInMemoryPool(nil), nil), nil)
		So(err, ShouldNotBeNil)
	})
}
