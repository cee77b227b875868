// Package engine drives SQL statement execution against a remote gateway
// session: submission, bounded/unbounded classification, cursor-based result
// polling, incremental publication of a capped result buffer, cancellation,
// and failure classification.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamsql/workbench/pkg/errors"
	"github.com/streamsql/workbench/pkg/infrastructure/metrics"
	"github.com/streamsql/workbench/pkg/models"
)

// Gateway is the slice of the gateway client the engine needs.
type Gateway interface {
	SubmitStatement(ctx context.Context, sessionHandle, statement string, executionTimeout time.Duration) (string, error)
	FetchResults(ctx context.Context, sessionHandle, operationHandle string, token int64) (*models.StatementResult, error)
	CancelOperation(ctx context.Context, sessionHandle, operationHandle string) error
	CloseOperation(ctx context.Context, sessionHandle, operationHandle string) error
}

// SessionProvider supplies a live session handle, recovering stale ones
// transparently.
type SessionProvider interface {
	GetActiveHandle(ctx context.Context) (string, error)
}

// Publisher receives each incremental result snapshot.
type Publisher func(snapshot models.ResultSnapshot)

// TerminalState is the single terminal state every statement execution
// reaches: exactly one of finished, canceled, or failed.
type TerminalState string

const (
	StateFinished TerminalState = "finished"
	StateCanceled TerminalState = "canceled"
	StateFailed   TerminalState = "failed"
)

// Outcome reports how one statement execution ended.
type Outcome struct {
	Statement string
	State     TerminalState
	Err       error
	JobID     string
	// Rows is the total number of rows fetched, before any windowing.
	Rows int
}

// Config holds the engine's polling and buffering parameters.
type Config struct {
	// FirstPageInterval and FirstPageAttempts bound the wait for token 0 to
	// leave NOT_READY.
	FirstPageInterval time.Duration
	FirstPageAttempts int
	// BatchInterval and BatchAttempts bound multi-page polling of bounded
	// results.
	BatchInterval time.Duration
	BatchAttempts int
	// StreamInterval paces unbounded result polling, which has no attempt
	// bound and runs until a terminal event or cancellation.
	StreamInterval time.Duration
	// FailureThreshold is the number of consecutive tolerated poll errors.
	FailureThreshold int
	// StreamBufferRows caps the streaming result window.
	StreamBufferRows int
	// ExecutionTimeout is passed to the gateway on statement submission.
	ExecutionTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		FirstPageInterval: 300 * time.Millisecond,
		FirstPageAttempts: 20,
		BatchInterval:     500 * time.Millisecond,
		BatchAttempts:     120,
		StreamInterval:    time.Second,
		FailureThreshold:  5,
		StreamBufferRows:  1000,
		ExecutionTimeout:  time.Minute,
	}
}

// Engine executes statements through a session provider and gateway client.
type Engine struct {
	gw       Gateway
	sessions SessionProvider
	cfg      Config
	logger   zerolog.Logger
	metrics  metrics.Collector

	mu                sync.Mutex
	metadataListeners []func()
}

// New creates an execution engine.
func New(gw Gateway, sessions SessionProvider, cfg Config, logger zerolog.Logger, collector metrics.Collector) *Engine {
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &Engine{
		gw:       gw,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With().Str("component", "engine").Logger(),
		metrics:  collector,
	}
}

// OnMetadataChanged registers a listener fired once after every statement
// batch that contained a DDL statement.
func (e *Engine) OnMetadataChanged(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metadataListeners = append(e.metadataListeners, fn)
}

func (e *Engine) fireMetadataChanged() {
	e.mu.Lock()
	listeners := append([]func(){}, e.metadataListeners...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// ExecuteAll splits cell text into statements and runs each to its terminal
// state before the next begins. A failure stops the batch; remaining
// statements are not executed. If any executed statement was DDL, exactly one
// metadata-changed notification fires after the batch.
func (e *Engine) ExecuteAll(ctx context.Context, text string, publish Publisher) []Outcome {
	statements := SplitStatements(text)
	outcomes := make([]Outcome, 0, len(statements))
	sawDDL := false

	for _, stmt := range statements {
		outcome := e.ExecuteStatement(ctx, stmt, publish)
		outcomes = append(outcomes, outcome)
		if IsDDL(stmt) {
			sawDDL = true
		}
		if outcome.State == StateFailed || outcome.State == StateCanceled {
			break
		}
	}

	if sawDDL {
		e.fireMetadataChanged()
	}
	return outcomes
}

// ExecuteStatement runs one statement to its terminal state, publishing
// incremental result snapshots along the way.
func (e *Engine) ExecuteStatement(ctx context.Context, statement string, publish Publisher) Outcome {
	outcome := e.execute(ctx, statement, publish)
	e.metrics.IncrementCounter("workbench_statements_total", "state", string(outcome.State))
	switch outcome.State {
	case StateFinished:
		e.logger.Info().Str("statement", statement).Int("rows", outcome.Rows).Msg("statement finished")
	case StateCanceled:
		e.logger.Info().Str("statement", statement).Msg("statement canceled")
	case StateFailed:
		e.logger.Error().Err(outcome.Err).Str("statement", statement).Msg("statement failed")
	}
	return outcome
}

// execution is the per-statement state carried through the polling loops.
type execution struct {
	sessionHandle   string
	operationHandle string
	statement       string
	publish         Publisher
	buffer          *ResultBuffer
	schema          models.ResultSchema
	schemaSet       bool
	streaming       bool
	jobID           string
	token           int64
	// consecutiveEmpty counts empty streaming pages since the last payload.
	consecutiveEmpty int
}

func (e *Engine) execute(ctx context.Context, statement string, publish Publisher) Outcome {
	if publish == nil {
		publish = func(models.ResultSnapshot) {}
	}

	sessionHandle, err := e.sessions.GetActiveHandle(ctx)
	if err != nil {
		return Outcome{Statement: statement, State: StateFailed, Err: err}
	}

	operationHandle, err := e.gw.SubmitStatement(ctx, sessionHandle, statement, e.cfg.ExecutionTimeout)
	if err != nil {
		if errors.IsCanceled(err) {
			return Outcome{Statement: statement, State: StateCanceled, Err: err}
		}
		return Outcome{Statement: statement, State: StateFailed, Err: err}
	}

	exec := &execution{
		sessionHandle:   sessionHandle,
		operationHandle: operationHandle,
		statement:       statement,
		publish:         publish,
	}

	first, err := e.awaitFirstPage(ctx, exec)
	if err != nil {
		return e.terminate(ctx, exec, err)
	}

	exec.streaming = first.IsQueryResult
	if exec.streaming {
		exec.buffer = NewResultBuffer(e.cfg.StreamBufferRows)
	} else {
		exec.buffer = NewResultBuffer(0)
	}

	// A reported ERROR result is a terminal event, not a transient poll
	// failure; it aborts alongside the fatal exception classes.
	fatal := func(err error) bool {
		return errors.IsFatalPollError(err) || errors.IsCode(err, errors.CodeStatementFailed)
	}

	seedFailures := 0
	done, err := e.applyPage(exec, first)
	if err != nil {
		// An unknown result type or malformed page on the first page is
		// tolerated the same way it is while polling: keep going, but it
		// still counts toward the consecutive-failure threshold.
		if fatal(err) || errors.IsCanceled(err) || !errors.IsCode(err, errors.CodeGateway) {
			return e.terminate(ctx, exec, err)
		}
		seedFailures = 1
		if e.cfg.FailureThreshold <= seedFailures {
			return e.terminate(ctx, exec, err)
		}
	}
	if done {
		e.publishFinal(exec)
		return Outcome{Statement: statement, State: StateFinished, JobID: exec.jobID, Rows: exec.buffer.Total()}
	}
	policy := PollPolicy{
		Interval:         e.cfg.BatchInterval,
		MaxAttempts:      e.cfg.BatchAttempts,
		FailureThreshold: e.cfg.FailureThreshold,
		InitialFailures:  seedFailures,
		Fatal:            fatal,
	}
	if exec.streaming {
		policy.Interval = e.cfg.StreamInterval
		policy.MaxAttempts = 0
	}

	err = policy.Run(ctx, func(ctx context.Context) (PollResult, error) {
		page, err := e.gw.FetchResults(ctx, exec.sessionHandle, exec.operationHandle, exec.token)
		if err != nil {
			e.metrics.IncrementCounter("workbench_poll_errors_total")
			return PollContinue, err
		}
		done, err := e.applyPage(exec, page)
		if err != nil {
			return PollContinue, err
		}
		if done {
			return PollDone, nil
		}
		return PollContinue, nil
	})
	if err != nil {
		if errors.IsCode(err, errors.CodeDeadlineExceeded) {
			err = errors.ErrStatementTimeout
		}
		return e.terminate(ctx, exec, err)
	}

	e.publishFinal(exec)
	return Outcome{Statement: statement, State: StateFinished, JobID: exec.jobID, Rows: exec.buffer.Total()}
}

// awaitFirstPage polls token 0 until the gateway reports something other than
// NOT_READY. Exhausting the bound is a timeout, with the caveat that the
// remote job may still be running.
func (e *Engine) awaitFirstPage(ctx context.Context, exec *execution) (*models.StatementResult, error) {
	var first *models.StatementResult
	policy := PollPolicy{
		Interval:         e.cfg.FirstPageInterval,
		MaxAttempts:      e.cfg.FirstPageAttempts,
		FailureThreshold: e.cfg.FailureThreshold,
		Fatal:            errors.IsFatalPollError,
	}
	err := policy.Run(ctx, func(ctx context.Context) (PollResult, error) {
		page, err := e.gw.FetchResults(ctx, exec.sessionHandle, exec.operationHandle, 0)
		if err != nil {
			e.metrics.IncrementCounter("workbench_poll_errors_total")
			return PollContinue, err
		}
		if page.ResultType == models.ResultTypeNotReady {
			return PollContinue, nil
		}
		first = page
		return PollDone, nil
	})
	if err != nil {
		if errors.IsCode(err, errors.CodeDeadlineExceeded) {
			return nil, errors.ErrStatementTimeout
		}
		return nil, err
	}
	return first, nil
}

// applyPage folds one result page into the execution: advances the token,
// appends and publishes rows, and decides whether the stream is over. The
// returned error carries ERROR/CANCELED result types and unknown ones; the
// latter count toward the failure threshold instead of aborting.
func (e *Engine) applyPage(exec *execution, page *models.StatementResult) (bool, error) {
	if page.JobID != "" {
		exec.jobID = page.JobID
	}

	switch page.ResultType {
	case models.ResultTypeError:
		return false, errors.New(errors.CodeStatementFailed, "the gateway reported a failed operation")
	case models.ResultTypeCanceled:
		return false, errors.ErrCanceled
	case models.ResultTypeNotReady, models.ResultTypePayload, models.ResultTypeEOS, models.ResultTypeFinished:
	default:
		// Open enumeration: keep polling, but count toward the threshold.
		return false, errors.Newf(errors.CodeGateway, "unexpected result type %q", page.ResultType)
	}

	var rows []models.Row
	if page.Results != nil {
		if !exec.schemaSet && len(page.Results.Columns) > 0 {
			exec.schema = models.SchemaFromColumns(page.Results.Columns)
			exec.schemaSet = true
		}
		var err error
		rows, err = models.NormalizeRows(page.Results.Data, page.Results.Columns)
		if err != nil {
			return false, errors.Wrap(err, errors.CodeGateway, "malformed result page")
		}
	}

	if page.NextToken != nil {
		exec.token = *page.NextToken
	} else if page.ResultType != models.ResultTypeNotReady {
		exec.token++
	}

	if len(rows) > 0 {
		exec.consecutiveEmpty = 0
		exec.buffer.Append(rows)
		e.metrics.IncrementCounter("workbench_result_pages_total")
		e.metrics.RecordHistogram("workbench_page_rows", float64(len(rows)))
	} else if exec.streaming {
		exec.consecutiveEmpty++
	}

	if page.ResultType.Terminal() {
		return true, nil
	}

	// Batch pages republish even when empty so the UI shows progress; empty
	// streaming pages do not.
	if len(rows) > 0 || !exec.streaming {
		exec.publishSnapshot(false)
	}
	return false, nil
}

// publishFinal emits the terminal snapshot, marked complete and no longer
// streaming so consumers drop their live indicator.
func (e *Engine) publishFinal(exec *execution) {
	exec.publishSnapshot(true)
}

func (x *execution) publishSnapshot(complete bool) {
	x.publish(models.ResultSnapshot{
		Schema: x.schema,
		Rows:   x.buffer.Rows(),
		Metadata: models.SnapshotMetadata{
			IsStreaming: x.streaming && !complete,
			IsComplete:  complete,
			Offset:      x.buffer.Offset(),
		},
		JobID: x.jobID,
	})
}

// terminate maps a loop error onto the statement's terminal state, performing
// best-effort remote cleanup for canceled streaming statements.
func (e *Engine) terminate(ctx context.Context, exec *execution, err error) Outcome {
	if errors.IsCanceled(err) || ctx.Err() != nil {
		// Remote cleanup is only needed when cancellation originated locally;
		// a CANCELED result type means the remote operation is already gone.
		if exec.streaming && ctx.Err() != nil {
			e.cancelRemote(exec)
		}
		if exec.buffer != nil {
			e.publishFinal(exec)
		}
		return Outcome{Statement: exec.statement, State: StateCanceled, Err: errors.ErrCanceled, JobID: exec.jobID, Rows: bufferTotal(exec)}
	}
	return Outcome{Statement: exec.statement, State: StateFailed, Err: err, JobID: exec.jobID, Rows: bufferTotal(exec)}
}

// cancelRemote cancels then closes the remote operation. Closing may fail if
// the operation is already gone; that failure is ignored.
func (e *Engine) cancelRemote(exec *execution) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.gw.CancelOperation(ctx, exec.sessionHandle, exec.operationHandle); err != nil {
		e.logger.Warn().Err(err).Str("operation", exec.operationHandle).Msg("remote cancel failed")
	}
	if err := e.gw.CloseOperation(ctx, exec.sessionHandle, exec.operationHandle); err != nil {
		e.logger.Debug().Err(err).Str("operation", exec.operationHandle).Msg("remote close failed")
	}
}

func bufferTotal(exec *execution) int {
	if exec.buffer == nil {
		return 0
	}
	return exec.buffer.Total()
}
