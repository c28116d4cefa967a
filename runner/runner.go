package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/flowmesh/artifact"
	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/memory"
	"github.com/hupe1980/flowmesh/session"
)

// DefaultMaxTransfers bounds agent handoffs within one run.
const DefaultMaxTransfers = 10

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// AppName is recorded on sessions the runner creates.
	AppName string
	// MaxTransfers bounds agent_transfer handoffs per run.
	MaxTransfers int
	// DefaultModel is used when neither a request nor an agent names a model.
	DefaultModel string
	// MaxInteractions overrides every flow's model call ceiling when > 0.
	MaxInteractions int
	// Streaming requests incremental model output delivered to OnPartial.
	Streaming bool
	OnPartial func(core.Event)

	SessionStore  core.SessionStore
	ArtifactStore core.ArtifactStore
	MemoryStore   core.MemoryStore
	Models        core.LLMRegistry
	CodeExecutor  core.CodeExecutor
	Logger        logging.Logger
}

// Result reports one completed run.
type Result struct {
	InvocationID string
	SessionID    string
	// Agent names the agent that produced Final.
	Agent string
	// Events holds every event appended during the run, starting with the
	// user's message.
	Events []core.Event
	Final  core.Event
}

// Runner coordinates agent execution: resolves the session, creates the
// invocation context, follows transfers and persists history through the
// session store. Concurrent runs are safe as long as they target different
// sessions; cancel a run through its context.
type Runner struct {
	root core.Agent
	opts Options
}

// New constructs a Runner for the agent tree rooted at root.
func New(root core.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		AppName:       "flowmesh",
		MaxTransfers:  DefaultMaxTransfers,
		SessionStore:  session.NewInMemoryStore(),
		ArtifactStore: artifact.NewInMemoryStore(),
		MemoryStore:   memory.NewInMemoryStore(),
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{root: root, opts: opts}
}

// Root returns the root agent.
func (r *Runner) Root() core.Agent { return r.root }

// RunText is Run with a plain text user message.
func (r *Runner) RunText(ctx context.Context, userID, sessionID, text string) (*Result, error) {
	return r.Run(ctx, userID, sessionID, core.NewTextContent(core.RoleUser, text))
}

// Run records content as the user's message in the session and runs the
// agent tree until an agent produces a conclusive event that is not a
// handoff. An empty sessionID creates a new session. Agent failures are
// reported as error events in Result.Final; the returned error covers
// session store failures only.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, content *core.Content) (*Result, error) {
	sess, err := r.loadOrCreate(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	ic := core.NewInvocationContext(
		ctx,
		sess,
		r.root,
		core.RunConfig{
			Input:           content,
			DefaultModel:    r.opts.DefaultModel,
			MaxInteractions: r.opts.MaxInteractions,
			Streaming:       r.opts.Streaming,
			OnPartial:       r.opts.OnPartial,
		},
		core.Services{
			Sessions:     r.opts.SessionStore,
			Artifacts:    r.opts.ArtifactStore,
			Memory:       r.opts.MemoryStore,
			Models:       r.opts.Models,
			CodeExecutor: r.opts.CodeExecutor,
		},
		r.opts.Logger,
	)

	mark := ic.Mark()

	if _, err := ic.AppendEvent(core.NewUserContentEvent(content)); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	ic.LogInfo("runner.run.start", "invocation_id", ic.InvocationID, "session_id", sess.ID, "agent", r.root.Name())

	agent, final := r.follow(ic)

	ic.LogInfo("runner.run.end",
		"invocation_id", ic.InvocationID,
		"agent", agent.Name(),
		"kind", string(final.Kind),
		"error", final.IsError(),
	)

	return &Result{
		InvocationID: ic.InvocationID,
		SessionID:    sess.ID,
		Agent:        agent.Name(),
		Events:       ic.EventsSince(mark),
		Final:        final,
	}, nil
}

// follow runs the active agent and keeps handing control to transfer
// targets until a turn ends without a handoff.
func (r *Runner) follow(ic *core.InvocationContext) (core.Agent, core.Event) {
	agent := r.root
	transfers := 0

	for {
		final := agent.Run(ic).Final
		if final.Kind != core.EventAgentTransfer {
			return agent, final
		}

		transfers++
		if transfers > r.opts.MaxTransfers {
			return agent, r.fail(ic, fmt.Sprintf("max transfers (%d) exceeded", r.opts.MaxTransfers))
		}

		target := core.RootAgent(agent).FindAgent(final.TransferTarget())
		if target == nil {
			return agent, r.fail(ic, fmt.Sprintf("transfer target %q not found", final.TransferTarget()))
		}

		ic.LogInfo("runner.transfer", "from", agent.Name(), "to", target.Name(), "transfers", transfers)

		agent = target
		ic = ic.WithAgent(target)
	}
}

func (r *Runner) fail(ic *core.InvocationContext, msg string) core.Event {
	ic.LogError("runner.error", "code", core.ErrCodeTransfer, "error", msg)

	ev := core.NewErrorEvent(core.Source{Kind: core.SourceSystem, Name: "runner"}, core.ErrCodeTransfer, msg)
	stored, err := ic.AppendEvent(ev)
	if err != nil {
		stamped, _ := ic.Stamp(ev)
		return stamped
	}
	return stored
}

func (r *Runner) loadOrCreate(ctx context.Context, userID, sessionID string) (*core.Session, error) {
	if sessionID != "" {
		sess, err := r.opts.SessionStore.Get(ctx, sessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, core.ErrSessionNotFound) {
			return nil, fmt.Errorf("load session: %w", err)
		}
	}

	sess, err := r.opts.SessionStore.Create(ctx, r.opts.AppName, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	r.opts.Logger.Debug("runner.session.created", "session_id", sess.ID, "user_id", userID)

	return sess, nil
}
