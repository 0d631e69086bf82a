package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	. "github.com/smartystreets/goconvey/convey"

	dedupe "github.com/okian/avatarcast/internal/domain/dedupe"
)

func behavesLikeADeduper(newDeduper func() dedupe.Deduper) {
	ctx := context.Background()
	d := newDeduper()

	Convey("When a request id is new", func() {
		jobID, seen, err := d.Claim(ctx, "req-1", "job-1")

		Convey("Then it is bound to the new job", func() {
			So(err, ShouldBeNil)
			So(seen, ShouldBeFalse)
			So(jobID, ShouldEqual, "job-1")
			So(d.Size(ctx), ShouldEqual, 1)
		})
	})

	Convey("When a request id is retried", func() {
		_, _, _ = d.Claim(ctx, "req-1", "job-1")
		jobID, seen, err := d.Claim(ctx, "req-1", "job-2")

		Convey("Then the original job is returned", func() {
			So(err, ShouldBeNil)
			So(seen, ShouldBeTrue)
			So(jobID, ShouldEqual, "job-1")
			So(d.Size(ctx), ShouldEqual, 1)
		})
	})

	Convey("When a claimed id is forgotten", func() {
		_, _, _ = d.Claim(ctx, "req-1", "job-1")
		So(d.Forget(ctx, "req-1"), ShouldBeNil)
		jobID, seen, err := d.Claim(ctx, "req-1", "job-2")

		Convey("Then it can be claimed again", func() {
			So(err, ShouldBeNil)
			So(seen, ShouldBeFalse)
			So(jobID, ShouldEqual, "job-2")
		})
	})

	Convey("When many goroutines claim the same id", func() {
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			winner int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, seen, err := d.Claim(ctx, "req-race", fmt.Sprintf("job-%d", i))
				if err == nil && !seen {
					mu.Lock()
					winner++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one wins", func() {
			So(winner, ShouldEqual, 1)
		})
	})
}

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given an in-memory deduper", t, func() {
		behavesLikeADeduper(func() dedupe.Deduper { return dedupe.NewInMemoryDeduper() })
	})

	Convey("Given a bounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
		_, _, _ = d.Claim(ctx, "a", "job-a")
		_, _, _ = d.Claim(ctx, "b", "job-b")
		_, _, _ = d.Claim(ctx, "c", "job-c")

		Convey("Then the oldest id is evicted first", func() {
			So(d.Size(ctx), ShouldEqual, 2)
			_, seen, _ := d.Claim(ctx, "c", "other")
			So(seen, ShouldBeTrue)
			_, seen, _ = d.Claim(ctx, "a", "job-a2")
			So(seen, ShouldBeFalse)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			_, _, _ = d.Claim(ctx, fmt.Sprintf("req-%d", i), "job")
		}
		So(d.Size(ctx), ShouldEqual, 1000)
	})
}

func TestRedisDeduper(t *testing.T) {
	Convey("Given a redis deduper", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		behavesLikeADeduper(func() dedupe.Deduper {
			return dedupe.NewRedisDeduper(client, "test:dedupe", time.Hour)
		})

		Convey("When the ttl passes", func() {
			ctx := context.Background()
			d := dedupe.NewRedisDeduper(client, "test:dedupe", time.Minute)
			_, _, _ = d.Claim(ctx, "req-ttl", "job-1")
			mr.FastForward(2 * time.Minute)

			_, seen, err := d.Claim(ctx, "req-ttl", "job-2")
			So(err, ShouldBeNil)
			So(seen, ShouldBeFalse)
		})
	})
}
