package schedule

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/discount-watch/internal/aggregate"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(context.Context) (*aggregate.Report, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &aggregate.Report{}, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestValidateSpec(t *testing.T) {
	for _, spec := range []string{"*/15 * * * *", "0 */5 * * * *", "@every 10m", "@hourly"} {
		assert.NoError(t, ValidateSpec(spec), spec)
	}
	for _, spec := range []string{"", "every ten minutes", "61 * * * *"} {
		assert.Error(t, ValidateSpec(spec), spec)
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New("@hourly", nil)
	require.Error(t, err)

	_, err = New("not a spec", &countingRunner{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron spec")
}

func TestScheduler_RunOnStart(t *testing.T) {
	r := &countingRunner{}
	s, err := New("@hourly", r, WithRunOnStart(true))
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.Next(), time.Hour)
}

func TestScheduler_NoRunOnStartByDefault(t *testing.T) {
	r := &countingRunner{}
	s, err := New("@hourly", r)
	require.NoError(t, err)

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(0), r.calls.Load())
}

func TestScheduler_LogsSkippedAndFailedRuns(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s, err := New("@hourly", &countingRunner{err: aggregate.ErrRunInProgress}, WithLogger(logger))
	require.NoError(t, err)
	s.trigger()
	assert.Contains(t, buf.String(), "previous run still active")

	s, err = New("@hourly", &countingRunner{err: errors.New("apply failed")}, WithLogger(logger))
	require.NoError(t, err)
	s.trigger()
	assert.Contains(t, buf.String(), "scheduled run failed")
}

func TestCronLogger(t *testing.T) {
	var buf syncBuffer
	l := cronLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Info("skip", "entry", 1)
	l.Error(errors.New("boom"), "panic", "entry", 1)

	out := buf.String()
	assert.Contains(t, out, `msg="cron: skip"`)
	assert.Contains(t, out, "error=boom")
}
