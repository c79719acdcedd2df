package sagas

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(log *[]string, name string, err error) func(context.Context) error {
	return func(context.Context) error {
		*log = append(*log, name)
		return err
	}
}

func TestSaga_CompletesAllSteps(t *testing.T) {
	var log []string
	s := New("ok", nil).
		AddStep(Step{Name: "a", Execute: record(&log, "a", nil)}).
		AddStep(Step{Name: "b", Execute: record(&log, "b", nil)})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"a", "b"}, log)
	assert.Equal(t, StateCompleted, s.State())
}

func TestSaga_CompensatesInReverse(t *testing.T) {
	boom := errors.New("boom")
	var log []string
	s := New("rollback", nil).
		AddStep(Step{Name: "a", Execute: record(&log, "a", nil), Compensate: record(&log, "undo-a", nil)}).
		AddStep(Step{Name: "b", Execute: record(&log, "b", nil)}).
		AddStep(Step{Name: "c", Execute: record(&log, "c", nil), Compensate: record(&log, "undo-c", nil)}).
		AddStep(Step{Name: "d", Execute: record(&log, "d", boom), Compensate: record(&log, "undo-d", nil)})

	err := s.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b", "c", "d", "undo-c", "undo-a"}, log)
	assert.Equal(t, StateCompensated, s.State())
}

func TestSaga_CompensationFailureIsReported(t *testing.T) {
	var log []string
	s := New("broken", nil).
		AddStep(Step{Name: "a", Execute: record(&log, "a", nil), Compensate: record(&log, "undo-a", errors.New("stuck"))}).
		AddStep(Step{Name: "b", Execute: record(&log, "b", errors.New("boom"))})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck")
	assert.Equal(t, StateFailed, s.State())
}

func TestSaga_RetriesUpToAttempts(t *testing.T) {
	calls := 0
	s := New("retry", nil).AddStep(Step{
		Name: "flaky",
		Execute: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		},
		Attempts:   3,
		RetryDelay: time.Millisecond,
	})

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestSaga_RetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	s := New("cancel", nil).AddStep(Step{
		Name: "flaky",
		Execute: func(context.Context) error {
			calls++
			cancel()
			return errors.New("transient")
		},
		Attempts:   5,
		RetryDelay: time.Hour,
	})

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
