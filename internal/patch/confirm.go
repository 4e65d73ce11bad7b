package patch

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"file-patch-server/internal/models"
)

// Decision is the answer of an approver or reviewer.
type Decision int

const (
	DecisionReject Decision = iota
	DecisionAccept
	// DecisionAcceptModified accepts the change with the content carried by the Verdict.
	DecisionAcceptModified
)

// Verdict is one answer to a Proposal.
type Verdict struct {
	Decision Decision
	// Content replaces the proposal when Decision is DecisionAcceptModified.
	Content string
}

// Proposal is what is shown to approvers and reviewers.
type Proposal struct {
	FilePath        string
	FileName        string
	UnifiedDiff     string
	OriginalContent string
	ProposedContent string
	Stat            models.DiffStat
}

// Approver is the caller-side confirmation prompt. It must return when ctx is done.
type Approver interface {
	Approve(ctx context.Context, p Proposal) (Verdict, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, p Proposal) (Verdict, error)

func (f ApproverFunc) Approve(ctx context.Context, p Proposal) (Verdict, error) { return f(ctx, p) }

// Reviewer is an external interactive party, such as an IDE companion, that may accept,
// reject or rewrite a proposal. Connect is called when Available reports false; the owner
// of the Reviewer calls Disconnect when it is no longer needed.
type Reviewer interface {
	Connect(ctx context.Context) error
	Available() bool
	Review(ctx context.Context, filePath, proposedContent string) (Verdict, error)
	Disconnect() error
}

// State is a step of the confirmation state machine.
type State int

const (
	StateIdle State = iota
	StatePreviewing
	StateApproved
	StateRejected
	StateExternallyModified
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreviewing:
		return "previewing"
	case StateApproved:
		return "approved"
	case StateRejected:
		return "rejected"
	case StateExternallyModified:
		return "externally_modified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateRejected || s == StateExternallyModified
}

// ErrAlreadyConfirmed is returned when Confirm is called on a used Coordinator.
var ErrAlreadyConfirmed = stdErrors.New("confirmation already ran")

// Confirmation is the terminal result of a Coordinator.
type Confirmation struct {
	State State
	// Content is the content to commit. Empty when State is StateRejected.
	Content string
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithApprover attaches the caller-side prompt.
func WithApprover(a Approver) CoordinatorOption {
	return func(c *Coordinator) { c.approver = a }
}

// WithReviewer attaches an external reviewer.
func WithReviewer(r Reviewer) CoordinatorOption {
	return func(c *Coordinator) { c.reviewer = r }
}

// WithSkipConfirmation approves every proposal without asking anyone.
func WithSkipConfirmation(skip bool) CoordinatorOption {
	return func(c *Coordinator) { c.skip = skip }
}

// WithCoordinatorLogger sets the logger used for state transitions.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// Coordinator runs the confirmation of a single invocation:
// Idle -> Previewing -> Approved | Rejected | ExternallyModified.
// A Coordinator is used once and is not shared between invocations.
type Coordinator struct {
	approver Approver
	reviewer Reviewer
	skip     bool
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

// NewCoordinator returns an idle Coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	c.logger.Debug("confirmation state", "from", from.String(), "to", to.String())
}

// Confirm offers p to the approver and the reviewer concurrently; the first verdict wins
// and the other wait is cancelled. Reviewer failures are logged and leave the decision
// to the approver. When ctx is done before a verdict arrives the state becomes Rejected
// and ctx's error is returned.
func (c *Coordinator) Confirm(ctx context.Context, p Proposal) (Confirmation, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Confirmation{}, ErrAlreadyConfirmed
	}
	c.mu.Unlock()
	c.transition(StatePreviewing)

	if c.skip {
		return c.finish(StateApproved, p.ProposedContent), nil
	}

	reviewer := c.connectReviewer(ctx)
	if c.approver == nil && reviewer == nil {
		c.logger.Info("no approver or reviewer available, rejecting", "file", p.FilePath)
		return c.finish(StateRejected, ""), nil
	}

	raceCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(raceCtx)
	verdicts := make(chan Verdict, 2)

	if c.approver != nil {
		g.Go(func() error {
			v, err := c.approver.Approve(gctx, p)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("approval of %s: %w", p.FilePath, err)
			}
			verdicts <- v
			stop()
			return nil
		})
	}
	if reviewer != nil {
		g.Go(func() error {
			v, err := reviewer.Review(gctx, p.FilePath, p.ProposedContent)
			if err != nil {
				if gctx.Err() == nil {
					c.logger.Warn("reviewer failed", "file", p.FilePath, "error", err)
				}
				return nil
			}
			verdicts <- v
			stop()
			return nil
		})
	}
	err := g.Wait()

	select {
	case v := <-verdicts:
		return c.apply(v, p), nil
	default:
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.finish(StateRejected, "")
		return Confirmation{State: StateRejected}, ctxErr
	}
	if err != nil {
		c.finish(StateRejected, "")
		return Confirmation{State: StateRejected}, err
	}
	return c.finish(StateRejected, ""), nil
}

func (c *Coordinator) connectReviewer(ctx context.Context) Reviewer {
	if c.reviewer == nil {
		return nil
	}
	if c.reviewer.Available() {
		return c.reviewer
	}
	if err := c.reviewer.Connect(ctx); err != nil {
		c.logger.Warn("reviewer unavailable", "error", err)
		return nil
	}
	if !c.reviewer.Available() {
		return nil
	}
	return c.reviewer
}

func (c *Coordinator) apply(v Verdict, p Proposal) Confirmation {
	switch v.Decision {
	case DecisionAccept:
		return c.finish(StateApproved, p.ProposedContent)
	case DecisionAcceptModified:
		if v.Content == p.ProposedContent {
			return c.finish(StateApproved, p.ProposedContent)
		}
		return c.finish(StateExternallyModified, v.Content)
	default:
		return c.finish(StateRejected, "")
	}
}

func (c *Coordinator) finish(s State, content string) Confirmation {
	c.transition(s)
	c.logger.Info("confirmation finished", "outcome", s.String())
	return Confirmation{State: s, Content: content}
}
