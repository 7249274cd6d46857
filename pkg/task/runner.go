package task

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
)

// Runner runs multiple Runnables and collects their errors.
type Runner struct {
	Context context.Context
	Tasks   []Runnable

	errCh  chan error
	exitCh chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner with a specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		errCh:   make(chan error, 1),
		exitCh:  make(chan struct{}),
	}
}

// HandleSignals handles CtrlC and SIGTERM from the system. The first
// signal cancels the runner context, a second one forces exit.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	r.Context = ctx
	go func() {
		<-sigCh
		glog.Info("stop requested")
		cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// Go spawns a Runnable with the runner context.
func (r *Runner) Go(tasks ...Runnable) *Runner {
	return r.GoWith(r.Context, tasks...)
}

// GoWith spawns a Runnable with a specified context.
func (r *Runner) GoWith(ctx context.Context, tasks ...Runnable) *Runner {
	for _, t := range tasks {
		var name string
		if named, ok := t.(Named); ok {
			name = named.Name()
		} else {
			name = strconv.Itoa(len(r.Tasks))
		}
		r.Tasks = append(r.Tasks, t)
		go func(t Runnable, name string) {
			glog.V(4).Infof("task[%s] started", name)
			r.errCh <- t.Run(ctx)
			glog.V(4).Infof("task[%s] stopped", name)
		}(t, name)
	}
	return r
}

// Wait waits until all Runnables stop and aggregates errors. A plain
// context cancellation is not treated as a failure.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for range r.Tasks {
		select {
		case <-r.exitCh:
			return errors.New("forced exit")
		case err := <-r.errCh:
			if !errors.Is(err, context.Canceled) {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

