package async

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femi-ajayi/transfer-extractor/internal/common"
	"github.com/femi-ajayi/transfer-extractor/internal/entity"
	"github.com/femi-ajayi/transfer-extractor/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingRunner struct {
	mu     sync.Mutex
	inputs []pipeline.ExtractInput
	traces []string
	err    error
}

func (r *countingRunner) Process(ctx context.Context, in pipeline.ExtractInput) (entity.ExtractionOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, in)
	r.traces = append(r.traces, common.RequestIDFromContext(ctx))
	return entity.ExtractionOutcome{}, r.err
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inputs)
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Process(ctx context.Context, _ pipeline.ExtractInput) (entity.ExtractionOutcome, error) {
	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return entity.ExtractionOutcome{}, nil
}

func TestQueueProcessesAllJobs(t *testing.T) {
	runner := &countingRunner{}
	q := NewExtractQueue(runner, testLogger(), WithWorkers(2), WithQueueSize(16))

	for i := 0; i < 5; i++ {
		err := q.Enqueue(context.Background(), Job{
			ID:          uuid.New(),
			Ref:         fmt.Sprintf("shots/%d.png", i),
			SubmittedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return runner.count() == 5 },
		2*time.Second, 10*time.Millisecond)
	q.Shutdown(context.Background())
}

func TestQueueShutdownDrainsInFlight(t *testing.T) {
	runner := &countingRunner{}
	q := NewExtractQueue(runner, testLogger(), WithWorkers(1), WithQueueSize(8))

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: uuid.New(), Ref: "a.png"}))
	}
	q.Shutdown(context.Background())

	assert.Equal(t, 4, runner.count())
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := NewExtractQueue(&countingRunner{}, testLogger(), WithWorkers(1))
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{ID: uuid.New()})

	require.Error(t, err)
	assert.Equal(t, common.CodeInternal, common.CodeOf(err))
}

func TestShutdownIsIdempotent(t *testing.T) {
	q := NewExtractQueue(&countingRunner{}, testLogger(), WithWorkers(1))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())
}

func TestWorkerContextCarriesTrace(t *testing.T) {
	runner := &countingRunner{}
	q := NewExtractQueue(runner, testLogger(), WithWorkers(1))

	withTrace := Job{ID: uuid.New(), Ref: "a.png", TraceID: "trace-123"}
	bare := Job{ID: uuid.New(), Ref: "b.png"}
	require.NoError(t, q.Enqueue(context.Background(), withTrace))
	require.NoError(t, q.Enqueue(context.Background(), bare))
	q.Shutdown(context.Background())

	require.Len(t, runner.traces, 2)
	assert.Contains(t, runner.traces, "trace-123")
	assert.Contains(t, runner.traces, bare.ID.String())
}

func TestWorkerPassesKnownPair(t *testing.T) {
	runner := &countingRunner{}
	q := NewExtractQueue(runner, testLogger(), WithWorkers(1))

	require.NoError(t, q.Enqueue(context.Background(), Job{
		ID:                 uuid.New(),
		Ref:                "a.png",
		KnownAccountNumber: "0123456789",
		KnownBankName:      "GTBank",
	}))
	q.Shutdown(context.Background())

	require.Len(t, runner.inputs, 1)
	assert.Equal(t, "0123456789", runner.inputs[0].KnownAccountNumber)
	assert.Equal(t, "GTBank", runner.inputs[0].KnownBankName)
}

func TestEnqueueBackpressureHonorsContext(t *testing.T) {
	runner := &blockingRunner{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	q := NewExtractQueue(runner, testLogger(), WithWorkers(1), WithQueueSize(1))

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: uuid.New()}))
	<-runner.started // worker is busy; the channel slot is free again

	require.NoError(t, q.Enqueue(context.Background(), Job{ID: uuid.New()}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, Job{ID: uuid.New()})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(runner.release)
	q.Shutdown(context.Background())
}

func TestNewExtractQueueNilRunnerPanics(t *testing.T) {
	assert.Panics(t, func() { NewExtractQueue(nil, testLogger()) })
}

func TestRunnerErrorDoesNotStopWorkers(t *testing.T) {
	runner := &countingRunner{err: common.NewAppError(common.CodeInvalidArgument, "bad input", nil)}
	q := NewExtractQueue(runner, testLogger(), WithWorkers(1))

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{ID: uuid.New()}))
	}
	q.Shutdown(context.Background())

	assert.Equal(t, 3, runner.count())
}
