package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/saharasol/relief-admin/internal/chain"
	"github.com/saharasol/relief-admin/internal/domain"
	"github.com/saharasol/relief-admin/internal/ratelimit"
)

const (
	// DefaultBundleSize is how many instructions share one transaction on the
	// bundled path. One signature covers the whole bundle, cutting approval
	// round-trips fivefold at the cost of coarser failure granularity.
	DefaultBundleSize = 5

	defaultBundledDelay    = 500 * time.Millisecond
	defaultSequentialDelay = time.Second
	defaultSkipDelay       = 300 * time.Millisecond

	canceledNote = "operation canceled"
)

// InstructionBuilder builds one signable admin instruction per target.
type InstructionBuilder interface {
	BuildInstruction(
		action domain.ActionKind,
		admin solana.PublicKey,
		ngoAuthority solana.PublicKey,
		reason string,
		actionID uint64,
	) (solana.Instruction, error)
}

// ProgressFunc observes item snapshots. Snapshots are copies; the observer may
// retain them. Called after every item mutation, strictly in submission order.
type ProgressFunc func(items []domain.ActionItem, current int)

// Target is one entity the action applies to, with its current-state predicate
// already evaluated against the chain.
type Target struct {
	Authority     string
	Name          string
	InTargetState bool
}

// Request drives one engine run.
type Request struct {
	Action   domain.ActionKind
	Strategy domain.Strategy
	Reason   string
	Targets  []Target

	// Observer receives progress snapshots; optional.
	Observer ProgressFunc
	// Refresh runs once after the batch loop so the caller can re-fetch
	// authoritative state; optional.
	Refresh func(ctx context.Context) error
	// Canceled is probed between batches; a true result stops the run and
	// resolves every remaining item as an error. Optional.
	Canceled func(ctx context.Context) bool
}

// Result summarizes one run. Every item is in a terminal state when Run
// returns, whatever the outcome.
type Result struct {
	Items     []domain.ActionItem
	Batches   int
	Submitted int
	Succeeded int
	Failed    int
	Skipped   int
	Canceled  bool
}

// Config tunes batching and pacing.
type Config struct {
	BundleSize      int
	BundledDelay    time.Duration
	SequentialDelay time.Duration
	SkipDelay       time.Duration
}

func (c Config) withDefaults() Config {
	if c.BundleSize < 1 {
		c.BundleSize = DefaultBundleSize
	}
	if c.BundledDelay <= 0 {
		c.BundledDelay = defaultBundledDelay
	}
	if c.SequentialDelay <= 0 {
		c.SequentialDelay = defaultSequentialDelay
	}
	if c.SkipDelay <= 0 {
		c.SkipDelay = defaultSkipDelay
	}
	return c
}

// Engine partitions targets into batches, submits them strictly sequentially,
// classifies failures, and reports fine-grained per-item progress. Batches are
// isolated: a failing batch never halts the ones after it, and nothing is
// rolled back across batches.
type Engine struct {
	builder     InstructionBuilder
	submitter   chain.Submitter
	admin       solana.PublicKey
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	cfg         Config
	generateIDs func(actor solana.PublicKey, count int) ([]uint64, error)
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(
	builder InstructionBuilder,
	submitter chain.Submitter,
	admin solana.PublicKey,
	rateLimiter ratelimit.RateLimiter,
	cfg Config,
	logger *zap.Logger,
) (*Engine, error) {
	if builder == nil {
		return nil, fmt.Errorf("instruction builder is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		builder:     builder,
		submitter:   submitter,
		admin:       admin,
		rateLimiter: rateLimiter,
		logger:      logger,
		cfg:         cfg.withDefaults(),
		generateIDs: GenerateActionIDs,
		sleep:       sleepWithContext,
	}, nil
}

// Run executes the batch submission protocol over req.Targets. Per-batch
// failures are captured in the items, never returned; the error return carries
// only run-level outcomes (validation, missing signer, nothing to do,
// cancellation).
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(req.Targets) == 0 {
		return Result{}, fmt.Errorf("%w: at least one target is required", domain.ErrValidation)
	}
	if !req.Action.IsValid() {
		return Result{}, fmt.Errorf("%w: invalid action %q", domain.ErrValidation, req.Action)
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = req.Action.DefaultStrategy()
	}
	if !strategy.IsValid() {
		return Result{}, fmt.Errorf("%w: invalid strategy %q", domain.ErrValidation, strategy)
	}

	run := newRunState(req)

	if e.admin.IsZero() {
		run.resolveAll(domain.ItemError, "", domain.ErrNoSigner.Error())
		run.notify(0)
		return run.result(), domain.ErrNoSigner
	}

	// Idempotence filter: targets already in the desired state never reach a
	// transaction, but they stay in the report as informational successes.
	if len(run.submit) == 0 {
		for _, pos := range run.skipped {
			run.resolve(pos, domain.ItemSuccess, req.Action.SkipNote(), "")
		}
		run.notify(0)
		e.logger.Info("nothing to do: all targets already in target state",
			zap.String("action", req.Action.String()),
			zap.Int("targets", len(req.Targets)),
		)
		return run.result(), domain.ErrNothingToDo
	}

	ids, err := e.generateIDs(e.admin, len(run.submit))
	if err != nil {
		run.resolveAll(domain.ItemError, "", err.Error())
		run.notify(0)
		return run.result(), err
	}
	for i, pos := range run.submit {
		id := ids[i]
		run.items[pos].ActionID = &id
	}

	var runErr error
	switch strategy {
	case domain.StrategyBundled:
		runErr = e.runBundled(ctx, req, run)
	default:
		runErr = e.runSequential(ctx, req, run)
	}

	if req.Refresh != nil {
		if err := req.Refresh(ctx); err != nil {
			e.logger.Warn("refresh callback failed", zap.Error(err))
		}
	}

	return run.result(), runErr
}

func (e *Engine) runBundled(ctx context.Context, req Request, run *runState) error {
	// Skipped targets resolve up front; the batch loop only sees real work.
	for _, pos := range run.skipped {
		run.resolve(pos, domain.ItemSuccess, req.Action.SkipNote(), "")
	}
	if len(run.skipped) > 0 {
		run.notify(run.submit[0])
	}

	batches := partition(run.submit, e.cfg.BundleSize)
	e.logger.Info("submitting bundled batches",
		zap.String("action", req.Action.String()),
		zap.Int("targets", len(run.submit)),
		zap.Int("batches", len(batches)),
	)

	for batchIdx, batch := range batches {
		if stopped, err := e.checkStop(ctx, req, run); stopped {
			return err
		}

		run.markProcessing(batch)
		run.notify(batch[0])

		sig, err := e.submitBatch(ctx, req, run, batch)
		run.resolveBatch(req, batch, sig, err)
		run.notify(batch[0])
		run.batches++

		if batchIdx < len(batches)-1 {
			if err := e.sleep(ctx, e.cfg.BundledDelay); err != nil {
				return e.stop(run, err)
			}
		}
	}

	return nil
}

func (e *Engine) runSequential(ctx context.Context, req Request, run *runState) error {
	e.logger.Info("submitting sequentially",
		zap.String("action", req.Action.String()),
		zap.Int("targets", len(run.items)),
	)

	for pos := range run.items {
		if stopped, err := e.checkStop(ctx, req, run); stopped {
			return err
		}

		run.markProcessing([]int{pos})
		run.notify(pos)

		last := pos == len(run.items)-1

		if run.items[pos].ActionID == nil {
			run.resolve(pos, domain.ItemSuccess, req.Action.SkipNote(), "")
			run.notify(pos)
			if !last {
				if err := e.sleep(ctx, e.cfg.SkipDelay); err != nil {
					return e.stop(run, err)
				}
			}
			continue
		}

		sig, err := e.submitBatch(ctx, req, run, []int{pos})
		run.resolveBatch(req, []int{pos}, sig, err)
		run.notify(pos)
		run.batches++

		if !last {
			if err := e.sleep(ctx, e.cfg.SequentialDelay); err != nil {
				return e.stop(run, err)
			}
		}
	}

	return nil
}

// submitBatch builds one instruction per batch member and submits them as a
// single transaction. Instruction order matches item order within the batch.
func (e *Engine) submitBatch(ctx context.Context, req Request, run *runState, batch []int) (solana.Signature, error) {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.Wait(ctx, "solana-rpc"); err != nil {
			return solana.Signature{}, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	instructions := make([]solana.Instruction, 0, len(batch))
	for _, pos := range batch {
		item := run.items[pos]
		authority, err := solana.PublicKeyFromBase58(item.Authority)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("invalid target authority %q: %w", item.Authority, err)
		}

		instruction, err := e.builder.BuildInstruction(req.Action, e.admin, authority, req.Reason, *item.ActionID)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("failed to build instruction for %s: %w", item.Authority, err)
		}
		instructions = append(instructions, instruction)
	}

	if len(instructions) == 1 {
		return e.submitter.SubmitSingle(ctx, instructions[0])
	}
	return e.submitter.SubmitBundle(ctx, instructions)
}

// checkStop probes cancellation and context state between batches.
func (e *Engine) checkStop(ctx context.Context, req Request, run *runState) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, e.stop(run, err)
	}
	if req.Canceled != nil && req.Canceled(ctx) {
		run.canceled = true
		e.logger.Info("run canceled between batches",
			zap.String("action", req.Action.String()),
			zap.Int("completedBatches", run.batches),
		)
		return true, e.stop(run, context.Canceled)
	}
	return false, nil
}

// stop resolves every non-terminal item as an error so no item is left in
// PENDING or PROCESSING after the engine returns.
func (e *Engine) stop(run *runState, cause error) error {
	for pos := range run.items {
		if run.items[pos].Status.IsTerminal() {
			continue
		}
		run.resolve(pos, domain.ItemError, "", canceledNote)
	}
	run.notify(0)
	return cause
}

// runState owns the item collection for the duration of one run. Items are
// mutated in place; observers only ever see copies.
type runState struct {
	items    []domain.ActionItem
	submit   []int
	skipped  []int
	observer ProgressFunc
	batches  int
	canceled bool
}

func newRunState(req Request) *runState {
	run := &runState{
		items:    make([]domain.ActionItem, len(req.Targets)),
		observer: req.Observer,
	}
	for i, target := range req.Targets {
		run.items[i] = domain.ActionItem{
			Position:  i,
			Name:      target.Name,
			Authority: target.Authority,
			Status:    domain.ItemPending,
		}
		if target.InTargetState {
			run.skipped = append(run.skipped, i)
		} else {
			run.submit = append(run.submit, i)
		}
	}
	return run
}

func (r *runState) markProcessing(batch []int) {
	for _, pos := range batch {
		r.items[pos].Status = domain.ItemProcessing
	}
}

func (r *runState) resolve(pos int, status domain.ItemStatus, note, errMsg string) {
	r.items[pos].Status = status
	r.items[pos].Note = note
	if errMsg != "" {
		msg := errMsg
		r.items[pos].Error = &msg
	}
}

func (r *runState) resolveAll(status domain.ItemStatus, note, errMsg string) {
	for pos := range r.items {
		r.resolve(pos, status, note, errMsg)
	}
}

// resolveBatch applies one submission outcome to every item of the batch. A
// duplicate submission is remapped to success with no error text: the receipt
// the transaction would have created already exists, so the intent is
// satisfied.
func (r *runState) resolveBatch(req Request, batch []int, sig solana.Signature, err error) {
	sigStr := sig.String()

	switch {
	case err == nil:
		for _, pos := range batch {
			r.resolve(pos, domain.ItemSuccess, "", "")
			r.items[pos].Signature = &sigStr
		}
	case chain.IsDuplicate(err):
		for _, pos := range batch {
			r.resolve(pos, domain.ItemSuccess, "", "")
		}
	default:
		for _, pos := range batch {
			r.resolve(pos, domain.ItemError, "", err.Error())
		}
	}
}

func (r *runState) notify(current int) {
	if r.observer == nil {
		return
	}
	snapshot := make([]domain.ActionItem, len(r.items))
	copy(snapshot, r.items)
	r.observer(snapshot, current)
}

func (r *runState) result() Result {
	res := Result{
		Items:     r.items,
		Batches:   r.batches,
		Submitted: len(r.submit),
		Skipped:   len(r.skipped),
		Canceled:  r.canceled,
	}
	for pos := range r.items {
		switch r.items[pos].Status {
		case domain.ItemSuccess:
			res.Succeeded++
		case domain.ItemError:
			res.Failed++
		}
	}
	return res
}

// partition splits positions into contiguous groups of at most size.
func partition(positions []int, size int) [][]int {
	if size < 1 {
		size = 1
	}
	batches := make([][]int, 0, (len(positions)+size-1)/size)
	for start := 0; start < len(positions); start += size {
		end := min(start+size, len(positions))
		batches = append(batches, positions[start:end])
	}
	return batches
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
