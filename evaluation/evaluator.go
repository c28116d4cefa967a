package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/flowmesh/core"
	"github.com/hupe1980/flowmesh/logging"
	"github.com/hupe1980/flowmesh/runner"
	"github.com/hupe1980/flowmesh/tool"
)

// Target runs one user message; *runner.Runner satisfies it.
type Target interface {
	RunText(ctx context.Context, userID, sessionID, text string) (*runner.Result, error)
}

// Options controls evaluation behavior.
type Options struct {
	// UserID owns the sessions created for each case.
	UserID string
	// MinToolScore is the trajectory score a case needs to pass.
	MinToolScore float64
	// IncludeTransfers keeps transfer_to_agent calls in the trajectory.
	IncludeTransfers bool
	Logger           logging.Logger
}

// Evaluator runs cases against a Target, each in a fresh session.
type Evaluator struct {
	opts Options
}

// NewEvaluator creates an Evaluator. By default a case passes only with an
// exact tool trajectory and a matching response.
func NewEvaluator(optFns ...func(o *Options)) *Evaluator {
	opts := Options{
		UserID:       "evaluation",
		MinToolScore: 1,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Evaluator{opts: opts}
}

// EvaluateSet runs every case of set.
func (e *Evaluator) EvaluateSet(ctx context.Context, target Target, set *Set) (*Report, error) {
	if set == nil {
		return nil, errors.New("evaluation set is nil")
	}
	report, err := e.Evaluate(ctx, target, set.Cases)
	if err != nil {
		return nil, err
	}
	report.SetName = set.Name
	return report, nil
}

// Evaluate runs cases in order. A case whose run fails is recorded as
// failed; only a cancelled context aborts the evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, target Target, cases []Case) (*Report, error) {
	if target == nil {
		return nil, errors.New("evaluation target is nil")
	}

	results := make([]CaseResult, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation cancelled: %w", err)
		}

		res := e.evaluateCase(ctx, target, c)

		e.opts.Logger.Info("evaluation.case",
			"case_id", c.ID,
			"passed", res.Passed,
			"tool_score", res.ToolScore,
			"response_match", res.ResponseMatch,
		)

		results = append(results, res)
	}

	return &Report{
		GeneratedAt: time.Now().UTC(),
		Summary:     summarize(results),
		Cases:       results,
	}, nil
}

func (e *Evaluator) evaluateCase(ctx context.Context, target Target, c Case) CaseResult {
	start := time.Now()
	out := CaseResult{CaseID: c.ID}

	res, err := target.RunText(ctx, e.opts.UserID, "", c.Input)
	out.Duration = time.Since(start)
	if err != nil {
		out.Error = err.Error()
		out.ToolScore = TrajectoryScore(c.ExpectedTools, nil)
		return out
	}

	out.SessionID = res.SessionID
	out.Agent = res.Agent
	out.Tools = e.trajectory(res.Events)
	out.Response = res.Final.Text()
	out.ToolScore = TrajectoryScore(c.ExpectedTools, out.Tools)
	out.ResponseMatch = ResponseMatches(c.ExpectedResponse, out.Response)

	if res.Final.Error != nil {
		out.Error = fmt.Sprintf("%s: %s", res.Final.Error.Code, res.Final.Error.Message)
	}

	out.Passed = out.Error == "" && out.ResponseMatch && out.ToolScore >= e.opts.MinToolScore

	return out
}

// trajectory lists the tools the model asked for, in call order.
func (e *Evaluator) trajectory(events []core.Event) []string {
	var names []string
	for _, ev := range events {
		if ev.Kind != core.EventModelResponse || ev.Partial {
			continue
		}
		for _, call := range ev.FunctionCalls() {
			if call.Name == tool.TransferToAgentName && !e.opts.IncludeTransfers {
				continue
			}
			names = append(names, call.Name)
		}
	}
	return names
}
