package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamsql/workbench/pkg/errors"
	"github.com/streamsql/workbench/pkg/models"
)

// step scripts one FetchResults call of the fake gateway.
type step struct {
	result *models.StatementResult
	err    error
}

// fakeGateway replays scripted result pages. When the script runs out it
// repeats the last step, which models an unbounded stream.
type fakeGateway struct {
	mu         sync.Mutex
	steps      []step
	repeatLast bool
	fetches    int
	tokens     []int64
	submitted  []string
	canceled   int
	closed     int
	closeErr   error
}

func (f *fakeGateway) SubmitStatement(_ context.Context, _, statement string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, statement)
	return "op-1", nil
}

func (f *fakeGateway) FetchResults(_ context.Context, _, _ string, token int64) (*models.StatementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	i := f.fetches
	f.fetches++
	if i >= len(f.steps) {
		if !f.repeatLast || len(f.steps) == 0 {
			return nil, errors.New(errors.CodeGateway, "script exhausted")
		}
		i = len(f.steps) - 1
	}
	return f.steps[i].result, f.steps[i].err
}

func (f *fakeGateway) CancelOperation(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled++
	return nil
}

func (f *fakeGateway) CloseOperation(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeGateway) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeSessions struct{}

func (fakeSessions) GetActiveHandle(context.Context) (string, error) { return "sh-1", nil }

// page builds a StatementResult with integer single-column rows.
func page(rt models.ResultType, streaming bool, values ...int) *models.StatementResult {
	data := make([]json.RawMessage, len(values))
	for i, v := range values {
		raw, _ := json.Marshal(map[string]interface{}{"kind": "INSERT", "fields": []int{v}})
		data[i] = raw
	}
	return &models.StatementResult{
		ResultType:    rt,
		IsQueryResult: streaming,
		Results: &models.ResultsPayload{
			Columns: []models.Column{{Name: "v", LogicalType: models.LogicalType{Type: "INT"}}},
			Data:    data,
		},
	}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.FirstPageInterval = time.Millisecond
	cfg.BatchInterval = time.Millisecond
	cfg.StreamInterval = time.Millisecond
	return cfg
}

func newTestEngine(gw *fakeGateway, cfg Config) *Engine {
	return New(gw, fakeSessions{}, cfg, zerolog.Nop(), nil)
}

// collector accumulates published snapshots.
type collector struct {
	mu        sync.Mutex
	snapshots []models.ResultSnapshot
}

func (c *collector) publish(s models.ResultSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Rows share the buffer's backing array; copy for later inspection.
	rows := append([]models.Row(nil), s.Rows...)
	s.Rows = rows
	c.snapshots = append(c.snapshots, s)
}

func (c *collector) all() []models.ResultSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ResultSnapshot(nil), c.snapshots...)
}

func TestExecuteStatement_BatchImmediateEOS(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: page(models.ResultTypeEOS, false, 1)},
	}}
	var sink collector

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "SELECT 1", sink.publish)

	assert.Equal(t, StateFinished, outcome.State)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, 1, outcome.Rows)

	snapshots := sink.all()
	require.Len(t, snapshots, 1, "immediate EOS must yield exactly one publish")
	assert.True(t, snapshots[0].Metadata.IsComplete)
	assert.False(t, snapshots[0].Metadata.IsStreaming)
	assert.Equal(t, "int", snapshots[0].Schema.Fields[0].Type)
}

func TestExecuteStatement_BatchMultiPage(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: page(models.ResultTypePayload, false, 1, 2)},
		{result: page(models.ResultTypePayload, false, 3)},
		{result: page(models.ResultTypeEOS, false, 4)},
	}}
	var sink collector

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "SELECT * FROM t", sink.publish)

	require.Equal(t, StateFinished, outcome.State)
	assert.Equal(t, 4, outcome.Rows)

	snapshots := sink.all()
	require.NotEmpty(t, snapshots)
	final := snapshots[len(snapshots)-1]
	assert.True(t, final.Metadata.IsComplete)
	// Batch buffers are never capped; all rows arrive in fetch order.
	require.Len(t, final.Rows, 4)
	for i, want := range []float64{1, 2, 3, 4} {
		assert.Equal(t, want, final.Rows[i][0])
	}
	assert.Equal(t, 0, final.Metadata.Offset)

	// Intermediate pages republish immediately for partial progress.
	assert.GreaterOrEqual(t, len(snapshots), 3)
	// Token starts at 0 and increments when the gateway sends no nextResultToken.
	assert.Equal(t, []int64{0, 1, 2}, gw.tokens)
}

func TestExecuteStatement_FirstPageNotReadyThenPayload(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: &models.StatementResult{ResultType: models.ResultTypeNotReady}},
		{result: &models.StatementResult{ResultType: models.ResultTypeNotReady}},
		{result: page(models.ResultTypeEOS, false, 7)},
	}}
	var sink collector

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "SELECT 7", sink.publish)

	assert.Equal(t, StateFinished, outcome.State)
	assert.Equal(t, 1, outcome.Rows)
	// The first-page wait stays on token 0 while NOT_READY.
	assert.Equal(t, []int64{0, 0, 0}, gw.tokens)
}

func TestExecuteStatement_FirstPageTimeout(t *testing.T) {
	gw := &fakeGateway{
		steps:      []step{{result: &models.StatementResult{ResultType: models.ResultTypeNotReady}}},
		repeatLast: true,
	}
	cfg := fastConfig()
	cfg.FirstPageAttempts = 3

	outcome := newTestEngine(gw, cfg).ExecuteStatement(context.Background(), "SELECT slow()", nil)

	require.Equal(t, StateFailed, outcome.State)
	// The job may still be running remotely; the message must not imply it was killed.
	assert.Contains(t, outcome.Err.Error(), "may still be running")
}

func TestExecuteStatement_StreamCancellation(t *testing.T) {
	gw := &fakeGateway{
		steps:      []step{{result: page(models.ResultTypePayload, true, 1, 2)}},
		repeatLast: true,
	}
	var sink collector
	ctx, cancel := context.WithCancel(context.Background())

	published := 0
	publish := func(s models.ResultSnapshot) {
		sink.publish(s)
		published++
		if published == 3 {
			cancel()
		}
	}

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(ctx, "SELECT * FROM unbounded_source", publish)
	fetchesAtReturn := gw.fetchCount()

	assert.Equal(t, StateCanceled, outcome.State)
	assert.Equal(t, 1, gw.canceled, "remote cancel must be called")
	assert.Equal(t, 1, gw.closed, "remote close must be called")

	snapshots := sink.all()
	final := snapshots[len(snapshots)-1]
	assert.True(t, final.Metadata.IsComplete)
	assert.False(t, final.Metadata.IsStreaming, "final snapshot must drop the live indicator")

	// No polling continues after the terminal state.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, fetchesAtReturn, gw.fetchCount())
}

func TestExecuteStatement_StreamCloseFailureIgnored(t *testing.T) {
	gw := &fakeGateway{
		steps:      []step{{result: page(models.ResultTypePayload, true, 1)}},
		repeatLast: true,
		closeErr:   errors.New(errors.CodeNotFound, "operation already closed"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	publish := func(models.ResultSnapshot) {
		count++
		if count == 2 {
			cancel()
		}
	}

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(ctx, "SELECT * FROM s", publish)
	assert.Equal(t, StateCanceled, outcome.State)
	assert.Equal(t, 1, gw.closed)
}

func TestExecuteStatement_StreamWindowCap(t *testing.T) {
	gw := &fakeGateway{
		steps: []step{
			{result: page(models.ResultTypePayload, true, 1, 2, 3)},
			{result: page(models.ResultTypePayload, true, 4, 5, 6)},
			{result: page(models.ResultTypePayload, true, 7, 8, 9)},
			{result: page(models.ResultTypeEOS, true)},
		},
	}
	cfg := fastConfig()
	cfg.StreamBufferRows = 5
	var sink collector

	outcome := newTestEngine(gw, cfg).ExecuteStatement(context.Background(), "SELECT * FROM s", sink.publish)

	require.Equal(t, StateFinished, outcome.State)
	assert.Equal(t, 9, outcome.Rows)

	lastAbsolute := 0
	for _, s := range sink.all() {
		assert.LessOrEqual(t, len(s.Rows), 5, "published buffer must never exceed the cap")
		absolute := s.Metadata.Offset + len(s.Rows)
		assert.GreaterOrEqual(t, absolute, lastAbsolute, "offset + buffer length must be non-decreasing")
		lastAbsolute = absolute
	}

	snapshots := sink.all()
	final := snapshots[len(snapshots)-1]
	require.Len(t, final.Rows, 5)
	// Windowing drops a prefix, never reorders or drops from the middle.
	for i, want := range []float64{5, 6, 7, 8, 9} {
		assert.Equal(t, want, final.Rows[i][0])
	}
	assert.Equal(t, 4, final.Metadata.Offset)
}

func TestExecuteStatement_StreamEmptyPagesDoNotPublish(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: page(models.ResultTypePayload, true, 1)},
		{result: page(models.ResultTypePayload, true)},
		{result: page(models.ResultTypePayload, true)},
		{result: page(models.ResultTypeEOS, true)},
	}}
	var sink collector

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "SELECT * FROM s", sink.publish)

	require.Equal(t, StateFinished, outcome.State)
	// One publish for the payload page, one final; the empty pages are silent.
	assert.Len(t, sink.all(), 2)
}

func TestExecuteStatement_StreamErrorResultType(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: page(models.ResultTypePayload, true, 1)},
		{result: &models.StatementResult{ResultType: models.ResultTypeError}},
	}}

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "SELECT * FROM s", nil)

	require.Equal(t, StateFailed, outcome.State)
	assert.True(t, errors.IsCode(outcome.Err, errors.CodeStatementFailed))
	assert.Zero(t, gw.canceled)
}

func TestExecuteStatement_StreamCanceledResultType(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: page(models.ResultTypePayload, true, 1)},
		{result: &models.StatementResult{ResultType: models.ResultTypeCanceled}},
	}}

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "SELECT * FROM s", nil)

	assert.Equal(t, StateCanceled, outcome.State)
	// The remote operation is already gone; no cleanup calls.
	assert.Zero(t, gw.canceled)
	assert.Zero(t, gw.closed)
}

func TestExecuteStatement_ConsecutiveFailuresEscalate(t *testing.T) {
	transient := errors.New(errors.CodeTransport, "connection reset")
	gw := &fakeGateway{
		steps:      []step{{err: transient}},
		repeatLast: true,
	}
	cfg := fastConfig()
	cfg.FailureThreshold = 5

	outcome := newTestEngine(gw, cfg).ExecuteStatement(context.Background(), "SELECT 1", nil)

	require.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, 5, gw.fetchCount())
}

func TestExecuteStatement_FailureCounterResetsOnSuccess(t *testing.T) {
	transient := errors.New(errors.CodeTransport, "connection reset")
	gw := &fakeGateway{steps: []step{
		{result: page(models.ResultTypePayload, false, 1)},
		{err: transient},
		{err: transient},
		{result: page(models.ResultTypePayload, false, 2)},
		{err: transient},
		{result: page(models.ResultTypeEOS, false, 3)},
	}}
	cfg := fastConfig()
	cfg.FailureThreshold = 3

	outcome := newTestEngine(gw, cfg).ExecuteStatement(context.Background(), "SELECT * FROM t", nil)

	require.Equal(t, StateFinished, outcome.State)
	assert.Equal(t, 3, outcome.Rows)
}

func TestExecuteStatement_FatalErrorAbortsImmediately(t *testing.T) {
	gw := &fakeGateway{
		steps: []step{{err: errors.New(errors.CodeGateway,
			"org.apache.flink.runtime.jobmanager.scheduler.NoResourceAvailableException: no slots")}},
		repeatLast: true,
	}

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "INSERT INTO t SELECT 1", nil)

	require.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, 1, gw.fetchCount(), "no-resource-available must not be retried")
}

func TestExecuteStatement_AlreadyExistsAbortsImmediately(t *testing.T) {
	gw := &fakeGateway{
		steps: []step{{err: errors.New(errors.CodeGateway,
			"org.apache.flink.table.catalog.exceptions.TableAlreadyExistException: t")}},
		repeatLast: true,
	}

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "CREATE TABLE t (v INT)", nil)

	require.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, 1, gw.fetchCount())
}

func TestExecuteStatement_UnknownResultTypeKeepsPolling(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: &models.StatementResult{ResultType: "SOMETHING_NEW", IsQueryResult: false}},
		{result: &models.StatementResult{ResultType: "SOMETHING_NEW"}},
		{result: page(models.ResultTypeEOS, false, 1)},
	}}
	cfg := fastConfig()
	cfg.FailureThreshold = 5

	outcome := newTestEngine(gw, cfg).ExecuteStatement(context.Background(), "SELECT 1", nil)

	assert.Equal(t, StateFinished, outcome.State)
}

func TestExecuteStatement_UnknownResultTypeCountsTowardThreshold(t *testing.T) {
	gw := &fakeGateway{
		steps:      []step{{result: &models.StatementResult{ResultType: "SOMETHING_NEW"}}},
		repeatLast: true,
	}
	cfg := fastConfig()
	cfg.FailureThreshold = 3

	outcome := newTestEngine(gw, cfg).ExecuteStatement(context.Background(), "SELECT 1", nil)

	require.Equal(t, StateFailed, outcome.State)
	// The first page already counts, so two poll pages exhaust the threshold.
	assert.Equal(t, 3, gw.fetchCount())
}

func TestExecuteStatement_NextResultTokenAdvances(t *testing.T) {
	token5 := int64(5)
	first := page(models.ResultTypePayload, false, 1)
	first.NextToken = &token5
	gw := &fakeGateway{steps: []step{
		{result: first},
		{result: page(models.ResultTypeEOS, false, 2)},
	}}

	outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "SELECT * FROM t", nil)

	require.Equal(t, StateFinished, outcome.State)
	assert.Equal(t, []int64{0, 5}, gw.tokens)
}

func TestExecuteAll_SequentialWithSingleMetadataEvent(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: page(models.ResultTypeEOS, false)},
		{result: page(models.ResultTypeEOS, false, 1)},
	}}
	engine := newTestEngine(gw, fastConfig())

	events := 0
	engine.OnMetadataChanged(func() { events++ })

	outcomes := engine.ExecuteAll(context.Background(),
		"CREATE TABLE t (v INT); INSERT INTO t VALUES (1);", nil)

	require.Len(t, outcomes, 2)
	assert.Equal(t, StateFinished, outcomes[0].State)
	assert.Equal(t, StateFinished, outcomes[1].State)
	assert.Equal(t, []string{"CREATE TABLE t (v INT)", "INSERT INTO t VALUES (1)"}, gw.submitted)
	assert.Equal(t, 1, events, "one DDL batch fires exactly one metadata event")
}

func TestExecuteAll_StopsAfterFailure(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: &models.StatementResult{ResultType: models.ResultTypeError}},
	}}
	engine := newTestEngine(gw, fastConfig())

	outcomes := engine.ExecuteAll(context.Background(), "SELECT broken; SELECT 1;", nil)

	require.Len(t, outcomes, 1, "statements after a failure must not run")
	assert.Equal(t, StateFailed, outcomes[0].State)
	assert.Equal(t, []string{"SELECT broken"}, gw.submitted)
}

func TestExecuteAll_NoDDLNoEvent(t *testing.T) {
	gw := &fakeGateway{steps: []step{
		{result: page(models.ResultTypeEOS, false, 1)},
	}}
	engine := newTestEngine(gw, fastConfig())

	events := 0
	engine.OnMetadataChanged(func() { events++ })
	engine.ExecuteAll(context.Background(), "SELECT 1;", nil)

	assert.Zero(t, events)
}

func TestExecuteStatement_TerminalStateIsExclusive(t *testing.T) {
	scripts := map[string]*fakeGateway{
		"finished": {steps: []step{{result: page(models.ResultTypeEOS, false, 1)}}},
		"failed":   {steps: []step{{result: &models.StatementResult{ResultType: models.ResultTypeError}}}},
		"canceled": {steps: []step{{result: &models.StatementResult{ResultType: models.ResultTypeCanceled}}}},
	}
	for want, gw := range scripts {
		outcome := newTestEngine(gw, fastConfig()).ExecuteStatement(context.Background(), "SELECT 1", nil)
		assert.Equal(t, TerminalState(want), outcome.State)
	}
}
