package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunnerWait(t *testing.T) {
	r := NewRunner()
	r.Go(RunFunc(func(context.Context) error { return nil }),
		NamedRun("fail", RunFunc(func(context.Context) error { return errors.New("boom") })))
	err := r.Wait()
	require.Error(t, err)
	var agg *AggregatedError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 1)
}

func TestRunnerWaitIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunnerWith(ctx)
	r.Go(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	cancel()
	require.NoError(t, r.Wait())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Aggregate())
	errs.Add(nil, errors.New("a"), nil, errors.New("b"))
	require.Len(t, errs.Errors, 2)
	require.Contains(t, errs.Aggregate().Error(), "a")
	require.Contains(t, errs.Aggregate().Error(), "b")
}

func TestNamedRun(t *testing.T) {
	r := NamedRun("probe", RunFunc(func(context.Context) error { return nil }))
	named, ok := r.(Named)
	require.True(t, ok)
	require.Equal(t, "probe", named.Name())
}
