package pool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var slogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

type TestTask struct {
	executeFunc func(ctx context.Context) error
	wg          *sync.WaitGroup
	mFailure    *sync.Mutex
	failure     error
}

func NewTestTask(executeFunc func(ctx context.Context) error, wg *sync.WaitGroup) *TestTask {
	return &TestTask{
		executeFunc: executeFunc,
		wg:          wg,
		mFailure:    &sync.Mutex{},
	}
}

func (t *TestTask) Execute(ctx context.Context) error {
	if t.executeFunc != nil {
		return t.executeFunc(ctx)
	}

	return nil
}

// successful tasks release wg from their executeFunc
func (t *TestTask) OnFailure(e error) {
	t.mFailure.Lock()
	t.failure = e
	t.mFailure.Unlock()

	if t.wg != nil {
		t.wg.Done()
	}
}

func (t *TestTask) failureErr() error {
	t.mFailure.Lock()
	defer t.mFailure.Unlock()

	return t.failure
}

type counterTest struct {
	count int
	mu    *sync.Mutex
}

func NewCounterTest() *counterTest {
	return &counterTest{
		count: 0,
		mu:    &sync.Mutex{},
	}
}

func (c *counterTest) Inc(wg *sync.WaitGroup) func(context.Context) error {
	return func(context.Context) error {
		c.mu.Lock()
		c.count++
		c.mu.Unlock()
		wg.Done()
		return nil
	}
}

func (c *counterTest) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-time.After(d):
		t.Fatal("timed out waiting for tasks")
	case <-done:
	}
}

func TestWorkerPool_MultipleStartStopDontPanic(t *testing.T) {
	p := NewWorkerPool("test", 5, 1, 0, slogger)

	// We're just checking to make sure multiple
	// calls to start or stop don't cause a panic
	p.Start()
	p.Start()

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
}

func TestWorkerPool_QueuedUntilStarted(t *testing.T) {
	wg := &sync.WaitGroup{}
	c := NewCounterTest()

	p := NewWorkerPool("test", 3, 5, 0, slogger)
	require.Equal(t, 3, p.Workers())
	require.Zero(t, p.Queued())

	// the buffer takes work before any worker runs
	for i := 0; i < 2; i++ {
		wg.Add(1)
		require.NoError(t, p.AddWork(NewTestTask(c.Inc(wg), wg)))
	}
	require.Equal(t, 2, p.Queued())

	p.Start()
	defer p.Stop()

	waitTimeout(t, wg, 5*time.Second)
	require.Equal(t, 2, c.Count())
	require.Zero(t, p.Queued())
}

func TestWorkerPool_Work(t *testing.T) {
	var tasks []*TestTask
	wg := &sync.WaitGroup{}
	c := NewCounterTest()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		tasks = append(tasks, NewTestTask(c.Inc(wg), wg))
	}

	p := NewWorkerPool("test", 5, len(tasks), time.Second, slogger)
	p.Start()
	defer p.Stop()

	for _, j := range tasks {
		require.NoError(t, p.AddWork(j))
	}

	// we'll get a timeout failure if the tasks weren't processed
	waitTimeout(t, wg, 5*time.Second)
	require.Equal(t, 20, c.Count())

	for taskNum, task := range tasks {
		if task.failureErr() != nil {
			t.Fatalf("error function called on task %d when it shouldn't be", taskNum)
		}
	}
}

func TestWorkerPool_ProcessRemainingTasksAfterStop(t *testing.T) {
	p := NewWorkerPool("test", 4, 60, 0, slogger)
	p.Start()
	c := NewCounterTest()

	wg := &sync.WaitGroup{}
	for i := 0; i < 60; i++ {
		wg.Add(1)
		require.NoError(t, p.AddWork(NewTestTask(c.Inc(wg), wg)))
	}

	// Stop drains the queue before returning
	require.NoError(t, p.Stop())
	require.Equal(t, 60, c.Count())

	require.ErrorIs(t, p.AddWork(NewTestTask(nil, nil)), ErrWorkerPoolClosed)
}

func TestWorkerPool_RaceConditionOnStop(t *testing.T) {
	p := NewWorkerPool("test", 10, 10, 0, slogger)
	p.Start()

	wg := &sync.WaitGroup{}
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.AddWork(NewTestTask(nil, nil))
			if err != nil && !errors.Is(err, ErrWorkerPoolClosed) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	// Stop the worker pool concurrently
	go func() {
		_ = p.Stop()
	}()

	// every AddWork call must return, either accepted or rejected
	waitTimeout(t, wg, 10*time.Second)
	require.NoError(t, p.Stop())
}

func TestWorkerPool_ErrorIsReportedToOnFailure(t *testing.T) {
	boom := errors.New("boom")
	wg := &sync.WaitGroup{}
	wg.Add(1)

	task := NewTestTask(func(context.Context) error { return boom }, wg)

	p := NewWorkerPool("test", 1, 1, time.Second, slogger)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.AddWork(task))
	waitTimeout(t, wg, 5*time.Second)

	require.ErrorIs(t, task.failureErr(), boom)
}

func TestWorkerPool_PanicIsRecovered(t *testing.T) {
	wg := &sync.WaitGroup{}
	wg.Add(2)

	c := NewCounterTest()
	panicking := NewTestTask(func(context.Context) error { panic("some unhandled panic") }, wg)

	p := NewWorkerPool("test", 1, 2, time.Second, slogger)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.AddWork(panicking))
	// the same single worker must still be alive to run the next task
	require.NoError(t, p.AddWork(NewTestTask(c.Inc(wg), wg)))
	waitTimeout(t, wg, 5*time.Second)

	var pe *PanicError
	require.ErrorAs(t, panicking.failureErr(), &pe)
	require.Equal(t, "some unhandled panic", pe.Value)
	require.NotEmpty(t, pe.Stack)
	require.Equal(t, 1, c.Count())
}

func TestWorkerPool_TimeoutAbandonsTask(t *testing.T) {
	wg := &sync.WaitGroup{}
	wg.Add(2)

	release := make(chan struct{})
	defer close(release)

	stuck := NewTestTask(func(context.Context) error {
		// ignores ctx on purpose
		<-release
		return nil
	}, wg)

	c := NewCounterTest()

	p := NewWorkerPool("test", 1, 2, 50*time.Millisecond, slogger)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.AddWork(stuck))
	require.NoError(t, p.AddWork(NewTestTask(c.Inc(wg), wg)))
	waitTimeout(t, wg, 5*time.Second)

	require.ErrorIs(t, stuck.failureErr(), ErrExecutionTimeout)
	require.Equal(t, 1, c.Count())
}

func TestWorkerPool_ContextDeadlineMapsToTimeout(t *testing.T) {
	wg := &sync.WaitGroup{}
	wg.Add(1)

	task := NewTestTask(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, wg)

	p := NewWorkerPool("test", 1, 1, 20*time.Millisecond, slogger)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.AddWork(task))
	waitTimeout(t, wg, 5*time.Second)

	require.ErrorIs(t, task.failureErr(), ErrExecutionTimeout)
}
