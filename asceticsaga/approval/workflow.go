package approval

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/qmuntal/stateless"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/option"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/saga"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/signals"
)

const (
	triggerAutoApprove = "AUTO_APPROVE"
	triggerEscalate    = "ESCALATE"
	triggerApprove     = "APPROVE"
	triggerReject      = "REJECT"
	triggerTimeout     = "TIMEOUT"
)

var (
	ErrInvalidDecision = errors.New("invalid approval decision")
	ErrAlreadyStarted  = errors.New("approval workflow already started")
)

// Option configures a Workflow.
type Option func(*Workflow)

func WithPolicy(policy Policy) Option {
	return func(w *Workflow) {
		w.policy = policy
	}
}

func WithClock(clock Clock) Option {
	return func(w *Workflow) {
		if clock != nil {
			w.clock = clock
		}
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(w *Workflow) {
		if notifier != nil {
			w.notifier = notifier
		}
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(w *Workflow) {
		if recorder != nil {
			w.recorder = recorder
		}
	}
}

func WithStateStore(store StateStore) Option {
	return func(w *Workflow) {
		w.store = store
	}
}

// WithRecordRetry sets the retry policy of the terminal approval status update.
func WithRecordRetry(policy saga.RetryPolicy) Option {
	return func(w *Workflow) {
		w.recordRetry = policy
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Workflow drives one approval request from PENDING to a terminal status.
// Run owns all state changes; Signal only fills the decision slot and
// State is a read-only query, both safe to call from any goroutine.
type Workflow struct {
	id          string
	request     Request
	policy      Policy
	clock       Clock
	notifier    Notifier
	recorder    Recorder
	store       StateStore
	recordRetry saga.RetryPolicy
	logger      *zap.Logger
	fsm         *stateless.StateMachine
	transitions *signals.SignalImp[Transition]

	mu      sync.Mutex
	state   State
	started bool
	wake    chan struct{}
	done    chan struct{}
}

// NewWorkflow creates a workflow for req. An empty id is replaced by a random UUID.
func NewWorkflow(id string, req Request, opts ...Option) (*Workflow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	w := &Workflow{
		id:          id,
		request:     req,
		policy:      DefaultPolicy(),
		clock:       SystemClock{},
		notifier:    nopNotifier{},
		recorder:    nopRecorder{},
		recordRetry: saga.DefaultRetryPolicy(),
		logger:      zap.NewNop(),
		transitions: signals.NewSignal[Transition](),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.policy.Validate(); err != nil {
		return nil, err
	}
	w.logger = w.logger.With(zap.String("workflow_id", id), zap.String("order_id", req.OrderID))

	now := w.clock.Now()
	w.state = State{
		WorkflowID:      id,
		OrderID:         req.OrderID,
		TenantID:        req.TenantID,
		Amount:          req.Amount,
		Status:          StatusPending,
		CurrentApprover: option.Nothing[Role](),
		LatestDecision:  option.Nothing[Decision](),
		StartedAt:       now,
		UpdatedAt:       now,
	}
	w.fsm = w.newStateMachine()
	return w, nil
}

func (w *Workflow) newStateMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StatusPending)

	fsm.Configure(StatusPending).
		Permit(triggerAutoApprove, StatusApproved).
		PermitDynamic(triggerEscalate, w.firstLevel)

	for _, role := range []Role{RoleSupervisor, RoleManager} {
		fsm.Configure(role.WaitingStatus()).
			PermitDynamic(triggerApprove, w.nextLevel).
			Permit(triggerReject, StatusRejected).
			Permit(triggerTimeout, StatusTimeout)
	}

	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		w.logger.Debug("Approval state machine transitioned",
			zap.Any("from", t.Source),
			zap.Any("to", t.Destination),
			zap.Any("trigger", t.Trigger),
		)
	})
	return fsm
}

func (w *Workflow) firstLevel(_ context.Context, _ ...any) (stateless.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.state.ApprovalChain) == 0 {
		return nil, errors.New("empty approval chain")
	}
	return w.state.ApprovalChain[0].WaitingStatus(), nil
}

func (w *Workflow) nextLevel(_ context.Context, _ ...any) (stateless.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	next := w.state.CurrentApproverIndex + 1
	if next < len(w.state.ApprovalChain) {
		return w.state.ApprovalChain[next].WaitingStatus(), nil
	}
	return StatusApproved, nil
}

func (w *Workflow) ID() string {
	return w.id
}

func (w *Workflow) Request() Request {
	return w.request
}

// Transitions publishes every status change of the workflow.
func (w *Workflow) Transitions() signals.Signal[Transition] {
	return w.transitions
}

// Done is closed once the workflow reached a terminal status and recorded it.
func (w *Workflow) Done() <-chan struct{} {
	return w.done
}

// State returns a snapshot. Safe to call at any time, including after termination.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// Wait blocks until the workflow terminates or ctx is done.
func (w *Workflow) Wait(ctx context.Context) (State, error) {
	select {
	case <-w.done:
		return w.State(), nil
	case <-ctx.Done():
		return w.State(), ctx.Err()
	}
}

// Signal delivers a decision. The first decision for the awaited level wins.
// Decisions arriving once the slot is taken or the workflow is terminal are
// accepted and ignored. A decision without an ApproverID is rejected with
// ErrInvalidDecision and never reaches the slot.
func (w *Workflow) Signal(decision Decision) error {
	if decision.ApproverID == "" {
		return errors.WithMessage(ErrInvalidDecision, "approver id is required")
	}

	w.mu.Lock()
	if w.state.Status.IsTerminal() || w.state.LatestDecision.IsSome() {
		w.state.IgnoredDecisions++
		status := w.state.Status
		w.mu.Unlock()
		w.logger.Warn("Decision ignored",
			zap.String("approver", decision.ApproverID),
			zap.Bool("approved", decision.Approved),
			zap.String("status", string(status)),
		)
		return nil
	}
	w.state.LatestDecision = option.Some(decision)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run drives the workflow to a terminal status. It ignores cancellation of
// ctx: only a decision or the decision timeout ends a wait.
func (w *Workflow) Run(ctx context.Context) (State, error) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return w.State(), ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()
	defer close(w.done)

	ctx = context.WithoutCancel(ctx)
	w.save(ctx, w.State())
	w.logger.Info("Approval workflow started", zap.Float64("amount", w.request.Amount))

	if err := w.run(ctx); err != nil {
		w.logger.Error("Approval workflow aborted", zap.Error(err))
		return w.State(), err
	}

	final := w.State()
	w.record(ctx, final)
	w.logger.Info("Approval workflow finished",
		zap.String("status", string(final.Status)),
		zap.String("decided_by", final.DecidedBy),
	)
	return final, nil
}

func (w *Workflow) run(ctx context.Context) error {
	if w.policy.IsAutoApproved(w.request.Amount) {
		return w.fire(ctx, triggerAutoApprove, ActorSystem, func(s *State) {
			s.DecidedBy = ActorSystem
		})
	}

	chain := w.policy.Chain(w.request.Amount)
	w.mu.Lock()
	w.state.ApprovalChain = chain
	w.mu.Unlock()

	err := w.fire(ctx, triggerEscalate, ActorSystem, func(s *State) {
		s.CurrentApproverIndex = 0
		s.CurrentApprover = option.Some(chain[0])
	})
	if err != nil {
		return err
	}

	for {
		role := w.State().CurrentApprover.Unwrap()
		go w.notify(ctx, role)

		decision, decided := w.awaitDecision()
		if !decided {
			return w.fire(ctx, triggerTimeout, string(role), func(s *State) {
				s.DecidedBy = string(role)
				if s.LatestDecision.IsSome() {
					s.LatestDecision = option.Nothing[Decision]()
					s.IgnoredDecisions++
				}
			})
		}

		if !decision.Approved {
			return w.fire(ctx, triggerReject, decision.ApproverID, func(s *State) {
				s.DecidedBy = decision.ApproverID
				s.Comment = decision.Comment
			})
		}

		err := w.fire(ctx, triggerApprove, decision.ApproverID, func(s *State) {
			if s.Status == StatusApproved {
				s.DecidedBy = decision.ApproverID
				s.Comment = decision.Comment
				return
			}
			s.LatestDecision = option.Nothing[Decision]()
			s.CurrentApproverIndex++
			s.CurrentApprover = option.Some(s.ApprovalChain[s.CurrentApproverIndex])
		})
		if err != nil {
			return err
		}
		if w.State().Status.IsTerminal() {
			return nil
		}
	}
}

// awaitDecision is the only suspension point of the workflow.
func (w *Workflow) awaitDecision() (Decision, bool) {
	timer := w.clock.NewTimer(w.policy.DecisionTimeout)
	defer timer.Stop()

	for {
		if decision, ok := w.pendingDecision(); ok {
			return decision, true
		}
		select {
		case <-w.wake:
		case <-timer.C():
			return w.pendingDecision()
		}
	}
}

func (w *Workflow) pendingDecision() (Decision, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.LatestDecision.IsNothing() {
		return Decision{}, false
	}
	return w.state.LatestDecision.Unwrap(), true
}

func (w *Workflow) fire(ctx context.Context, trigger string, actor string, apply func(*State)) error {
	from := w.State().Status
	if err := w.fsm.FireCtx(ctx, trigger); err != nil {
		return errors.Wrapf(err, "fire %s from %s", trigger, from)
	}
	to := w.fsm.MustState().(Status)

	w.mu.Lock()
	w.state.Status = to
	apply(&w.state)
	w.state.UpdatedAt = w.clock.Now()
	snapshot := w.state.clone()
	w.mu.Unlock()

	w.logger.Info("Approval status changed",
		zap.String("from", string(from)),
		zap.String("status", string(to)),
		zap.String("actor", actor),
	)
	w.save(ctx, snapshot)

	event := Transition{
		WorkflowID: w.id,
		OrderID:    w.request.OrderID,
		From:       from,
		To:         to,
		Actor:      actor,
		At:         snapshot.UpdatedAt,
	}
	if err := w.transitions.Notify(event); err != nil {
		w.logger.Warn("Transition observer failed", zap.Error(err))
	}
	return nil
}

// notify runs apart from the decision wait, so a slow notifier never delays
// the decision timer.
func (w *Workflow) notify(ctx context.Context, role Role) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Approver notification panicked",
				zap.String("approver", string(role)),
				zap.Any("panic", r),
			)
		}
	}()
	if err := w.notifier.Notify(ctx, role, w.request.OrderID, w.request.Amount); err != nil {
		w.logger.Warn("Approver notification failed",
			zap.String("approver", string(role)),
			zap.Error(err),
		)
	}
}

func (w *Workflow) record(ctx context.Context, final State) {
	err := w.recordRetry.Do(ctx, func(ctx context.Context) error {
		return w.recorder.RecordApproval(ctx, final.OrderID, string(final.Status), final.DecidedBy)
	})
	if err != nil {
		w.logger.Error("Failed to record approval outcome",
			zap.String("status", string(final.Status)),
			zap.Error(err),
		)
	}
}

func (w *Workflow) save(ctx context.Context, snapshot State) {
	if w.store == nil {
		return
	}
	if err := w.store.SaveState(ctx, snapshot); err != nil {
		w.logger.Warn("Failed to persist approval state",
			zap.String("status", string(snapshot.Status)),
			zap.Error(err),
		)
	}
}
