package dispatch

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/batalabs/convo/internal/domain"
)

// runPipeline executes the steps of req.Command strictly in order, resolving
// every step against the same snapshot. The tab stays Thinking from the first
// step to the last.
func (d *Dispatcher) runPipeline(ctx context.Context, req Request, stack []string) (Result, error) {
	def := req.Command
	res := Result{Kind: domain.CommandPipeline}
	if i := slices.Index(stack, def.Name); i >= 0 {
		path := append(slices.Clone(stack[i:]), def.Name)
		return res, d.fail(req.Tab, &domain.PipelineCycleError{Path: path})
	}
	if def.Pipeline == nil || len(def.Pipeline.Steps) == 0 {
		return res, d.fail(req.Tab, fmt.Errorf("pipeline %s has no steps", def.Name))
	}
	hold, err := acquire(req.Tab, def.Name, len(stack) > 0)
	if err != nil {
		return res, err
	}
	defer hold.Release()
	stack = append(stack, def.Name)
	cfg := def.Pipeline
	log := d.log.With(zap.String("pipeline", def.Name))

	pr := &domain.PipelineResult{Success: true, FailedIndex: -1}
	res.Pipeline = pr
	var (
		prev     string
		firstErr error
	)
	for i, step := range cfg.Steps {
		if err := ctx.Err(); err != nil {
			firstErr = d.stepFailed(pr, i, step.CommandName, def.Name, err, firstErr)
			break
		}
		args := step.Args
		if cfg.ChainOutput && i > 0 {
			args = chainArgs(args, prev)
		}

		sr := domain.StepResult{Index: i, CommandName: step.CommandName}
		var (
			stepDef domain.CommandDefinition
			ok      bool
		)
		if req.Snapshot != nil {
			stepDef, ok = req.Snapshot.Lookup(step.CommandName)
		}
		var (
			out Result
			err error
		)
		if !ok {
			err = d.fail(req.Tab, &domain.UnknownCommandError{Name: step.CommandName})
		} else {
			out, err = d.dispatch(ctx, Request{
				Tab:      req.Tab,
				Command:  stepDef,
				Args:     args,
				Context:  req.Context,
				Snapshot: req.Snapshot,
			}, stack)
		}
		sr.Output = out.Output
		if err != nil {
			sr.Error = err.Error()
			pr.Steps = append(pr.Steps, sr)
			log.Info("pipeline step failed", zap.Int("step", i), zap.String("target", step.CommandName), zap.Error(err))
			firstErr = d.stepFailed(pr, i, step.CommandName, def.Name, err, firstErr)
			if cfg.FailOnError {
				break
			}
			prev = ""
			continue
		}
		sr.Success = true
		pr.Steps = append(pr.Steps, sr)
		prev = out.Output
	}
	pr.FinalOutput = prev
	res.Output = prev
	if firstErr != nil {
		pr.Error = firstErr.Error()
	}

	summary := fmt.Sprintf("pipeline %s: %d/%d steps succeeded", def.Name, countSucceeded(pr.Steps), len(cfg.Steps))
	if pr.Success {
		req.Tab.Append(domain.SystemMessage(summary))
		return res, nil
	}
	req.Tab.Append(domain.ErrorMessage(fmt.Sprintf("%s, broke at step %d (%s)",
		summary, pr.FailedIndex+1, cfg.Steps[pr.FailedIndex].CommandName)))
	return res, firstErr
}

// stepFailed marks pr failed at index i and keeps the first failure as the
// pipeline's error.
func (d *Dispatcher) stepFailed(pr *domain.PipelineResult, i int, step, pipeline string, err, first error) error {
	pr.Success = false
	if pr.FailedIndex < 0 {
		pr.FailedIndex = i
	}
	if first != nil {
		return first
	}
	return &domain.PipelineStepError{Pipeline: pipeline, Index: i, Step: step, Err: err}
}

// chainArgs appends the previous step's output to a step's own arguments.
func chainArgs(args, prev string) string {
	prev = strings.TrimSpace(prev)
	switch {
	case prev == "":
		return args
	case strings.TrimSpace(args) == "":
		return prev
	default:
		return args + " " + prev
	}
}

func countSucceeded(steps []domain.StepResult) int {
	n := 0
	for _, s := range steps {
		if s.Success {
			n++
		}
	}
	return n
}
