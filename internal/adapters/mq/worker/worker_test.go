package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	worker "github.com/okian/guardline/internal/adapters/mq/worker"
	model "github.com/okian/guardline/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	tasks chan model.Task
}

func newMockQueue() *mockQueue {
	return &mockQueue{tasks: make(chan model.Task, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.Task {
	return mq.tasks
}

type failure struct {
	task model.Task
	err  error
}

type mockReporter struct {
	mu       sync.Mutex
	failures []failure
}

func (r *mockReporter) ReportTaskError(_ context.Context, t model.Task, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failure{task: t, err: err})
}

func (r *mockReporter) all() []failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]failure(nil), r.failures...)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running InMemoryWorker", t, func() {
		q := newMockQueue()
		rep := &mockReporter{}
		w := worker.NewInMemoryWorker(q, worker.WithName("test-worker"), worker.WithReporter(rep))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)
		defer func() { _ = w.Shutdown(context.Background()) }()

		convey.Convey("When a task succeeds", func() {
			done := make(chan error, 1)
			q.tasks <- model.Task{ID: "t1", SubjectID: "s1", Exec: func(context.Context) error { return nil }, Done: done}

			convey.Convey("Then its result is delivered and nothing is reported", func() {
				convey.So(<-done, convey.ShouldBeNil)
				convey.So(rep.all(), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When a task returns an error", func() {
			boom := errors.New("boom")
			done := make(chan error, 1)
			q.tasks <- model.Task{ID: "t2", SubjectID: "s1", ConnID: "c1", Exec: func(context.Context) error { return boom }, Done: done}

			convey.Convey("Then the originating connection is told", func() {
				convey.So(errors.Is(<-done, boom), convey.ShouldBeTrue)
				f := rep.all()
				convey.So(f, convey.ShouldHaveLength, 1)
				convey.So(f[0].task.ConnID, convey.ShouldEqual, "c1")
			})
		})

		convey.Convey("When a task panics", func() {
			done := make(chan error, 1)
			q.tasks <- model.Task{ID: "t3", SubjectID: "s1", Exec: func(context.Context) error { panic("kaboom") }, Done: done}
			err := <-done

			convey.Convey("Then the panic is recovered and the worker keeps going", func() {
				convey.So(errors.Is(err, worker.ErrTaskPanic), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "kaboom")

				next := make(chan error, 1)
				q.tasks <- model.Task{ID: "t4", SubjectID: "s1", Exec: func(context.Context) error { return nil }, Done: next}
				convey.So(<-next, convey.ShouldBeNil)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer shutdownCancel()

			convey.Convey("Then it stops gracefully and a second call is harmless", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a started pool with four shards", t, func() {
		rep := &mockReporter{}
		pool := worker.NewPool(4, worker.WithQueueCapacity(256), worker.WithErrorReporter(rep))
		ctx := context.Background()
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(ctx) }()

		convey.Convey("Then a subject always maps to the same shard", func() {
			convey.So(pool.Size(), convey.ShouldEqual, 4)
			convey.So(pool.Shard("subject-a"), convey.ShouldEqual, pool.Shard("subject-a"))
			convey.So(pool.Shard("subject-a"), convey.ShouldBeBetweenOrEqual, 0, 3)
		})

		convey.Convey("When many tasks for several subjects are submitted", func() {
			var mu sync.Mutex
			seen := map[string][]int{}
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				for _, s := range []string{"s1", "s2", "s3"} {
					i, s := i, s
					wg.Add(1)
					err := pool.Submit(ctx, model.Task{
						ID:        fmt.Sprintf("%s-%d", s, i),
						SubjectID: s,
						Exec: func(context.Context) error {
							defer wg.Done()
							mu.Lock()
							seen[s] = append(seen[s], i)
							mu.Unlock()
							return nil
						},
					})
					convey.So(err, convey.ShouldBeNil)
				}
			}
			wg.Wait()

			convey.Convey("Then each subject's tasks ran in submission order", func() {
				for _, s := range []string{"s1", "s2", "s3"} {
					convey.So(seen[s], convey.ShouldHaveLength, 50)
					for i, v := range seen[s] {
						convey.So(v, convey.ShouldEqual, i)
					}
				}
			})
		})

		convey.Convey("When Do is used", func() {
			err := pool.Do(ctx, model.Task{ID: "d1", SubjectID: "s1", Exec: func(context.Context) error { return errors.New("nope") }})

			convey.Convey("Then the task's error is returned", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldEqual, "nope")
			})
		})

		convey.Convey("When a task has no Exec", func() {
			err := pool.Submit(ctx, model.Task{ID: "bad", SubjectID: "s1"})

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, worker.ErrInvalidTask), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool is shut down", func() {
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			err := pool.Submit(ctx, model.Task{ID: "late", SubjectID: "s1", Exec: func(context.Context) error { return nil }})

			convey.Convey("Then later submissions fail", func() {
				convey.So(errors.Is(err, worker.ErrStopped), convey.ShouldBeTrue)
			})
		})
	})
}

func TestPool_Backpressure(t *testing.T) {
	convey.Convey("Given a single shard with room for one pending task", t, func() {
		pool := worker.NewPool(1, worker.WithQueueCapacity(1))
		ctx := context.Background()
		release := make(chan struct{})
		started := make(chan struct{})
		pool.Start(ctx)
		defer func() {
			close(release)
			_ = pool.Shutdown(ctx)
		}()

		block := model.Task{ID: "b", SubjectID: "s1", Exec: func(context.Context) error {
			close(started)
			<-release
			return nil
		}}
		convey.So(pool.Submit(ctx, block), convey.ShouldBeNil)
		<-started
		noop := func(context.Context) error { return nil }

		convey.Convey("Then submissions are refused once the shard is saturated", func() {
			var err error
			accepted := 0
			for i := 0; i < 10 && err == nil; i++ {
				if err = pool.Submit(ctx, model.Task{ID: fmt.Sprintf("p%d", i), SubjectID: "s1", Exec: noop}); err == nil {
					accepted++
				}
			}
			convey.So(errors.Is(err, worker.ErrQueueFull), convey.ShouldBeTrue)
			convey.So(accepted, convey.ShouldBeBetweenOrEqual, 1, 2)
		})
	})
}

func TestPool_Serve(t *testing.T) {
	convey.Convey("Given a pool served under a cancellable context", t, func() {
		pool := worker.NewPool(2)
		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() { errc <- pool.Serve(ctx) }()

		convey.So(pool.Do(context.Background(), model.Task{ID: "t", SubjectID: "s", Exec: func(context.Context) error { return nil }}), convey.ShouldBeNil)

		convey.Convey("When the context is cancelled", func() {
			cancel()

			convey.Convey("Then Serve returns after draining", func() {
				select {
				case err := <-errc:
					convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("serve did not return", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestPool_Cancel(t *testing.T) {
	convey.Convey("Given a started pool whose run context is cancelled with work queued", t, func() {
		rep := &mockReporter{}
		pool := worker.NewPool(1, worker.WithErrorReporter(rep))
		ctx, cancel := context.WithCancel(context.Background())
		pool.Start(ctx)

		release := make(chan struct{})
		started := make(chan struct{})
		convey.So(pool.Submit(context.Background(), model.Task{ID: "b", SubjectID: "s1", Exec: func(context.Context) error {
			close(started)
			<-release
			return nil
		}}), convey.ShouldBeNil)
		<-started

		var ran atomic.Bool
		pending := make(chan error, 1)
		convey.So(pool.Submit(context.Background(), model.Task{
			ID:        "queued",
			SubjectID: "s1",
			ConnID:    "c1",
			Exec: func(context.Context) error {
				ran.Store(true)
				return nil
			},
			Done: pending,
		}), convey.ShouldBeNil)

		cancel()
		close(release)

		convey.Convey("Then the queued task fails instead of hanging", func() {
			select {
			case err := <-pending:
				convey.So(errors.Is(err, worker.ErrStopped), convey.ShouldBeTrue)
			case <-time.After(time.Second):
				convey.So("queued task never completed", convey.ShouldBeEmpty)
			}
			convey.So(ran.Load(), convey.ShouldBeFalse)

			f := rep.all()
			convey.So(f, convey.ShouldHaveLength, 1)
			convey.So(f[0].task.ConnID, convey.ShouldEqual, "c1")
			convey.So(errors.Is(f[0].err, worker.ErrStopped), convey.ShouldBeTrue)
		})

		convey.Convey("Then later work is refused and shutdown completes", func() {
			doCtx, doCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer doCancel()
			var late atomic.Bool
			err := pool.Do(doCtx, model.Task{ID: "late", SubjectID: "s1", Exec: func(context.Context) error {
				late.Store(true)
				return nil
			}})
			convey.So(errors.Is(err, worker.ErrStopped), convey.ShouldBeTrue)
			convey.So(late.Load(), convey.ShouldBeFalse)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestPool_ShutdownRunsAccepted(t *testing.T) {
	convey.Convey("Given a pool with tasks queued behind a slow one", t, func() {
		pool := worker.NewPool(1)
		pool.Start(context.Background())

		var count atomic.Int64
		release := make(chan struct{})
		convey.So(pool.Submit(context.Background(), model.Task{ID: "slow", SubjectID: "s1", Exec: func(context.Context) error {
			<-release
			count.Add(1)
			return nil
		}}), convey.ShouldBeNil)
		for i := 0; i < 5; i++ {
			convey.So(pool.Submit(context.Background(), model.Task{ID: fmt.Sprintf("q%d", i), SubjectID: "s1", Exec: func(context.Context) error {
				count.Add(1)
				return nil
			}}), convey.ShouldBeNil)
		}

		convey.Convey("When the pool is shut down", func() {
			close(release)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := pool.Shutdown(ctx)

			convey.Convey("Then every accepted task ran first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(count.Load(), convey.ShouldEqual, 6)
			})
		})
	})
}
