// Package dispatch routes tasks through either the deterministic
// template path or the external content generator, and tracks how many
// tokens the template path avoided spending.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/GoCodeAlone/torque/executor"
	"github.com/GoCodeAlone/torque/provider"
	"github.com/GoCodeAlone/torque/rules"
	"github.com/GoCodeAlone/torque/task"
)

// Token bookkeeping for the cost report. Savings are estimates of what
// a generator call would have spent on the same task.
const (
	creationTokensSaved     = 1500
	modificationTokensSaved = 500
	reasoningTokenEstimate  = 800
)

const defaultGenerateTimeout = 60 * time.Second

// CostStats is a snapshot of the dispatcher's running counters.
type CostStats struct {
	TotalOps       int     `json:"total_operations"`
	GeneratorOps   int     `json:"generator_operations"`
	RuleBasedOps   int     `json:"rule_based_operations"`
	TokensUsed     int     `json:"tokens_used"`
	TokensSaved    int     `json:"tokens_saved"`
	SavingsPercent float64 `json:"cost_savings_percentage"`
}

// TaskSpec describes one task for the dispatcher. Only Description is
// required; Target, Content and Mode refine the file effect when the
// caller already knows them.
type TaskSpec struct {
	Description string
	Target      string
	Content     string
	Mode        task.Mode
}

// TaskOutcome reports how a task was routed and what happened.
type TaskOutcome struct {
	Success        bool
	Kind           task.Kind
	UsedGenerator  bool
	GeneratorCalls int
	TaskID         string
	Result         task.ExecutionResult
	Message        string
	TokensUsed     int
	TokensSaved    int
}

// Options configures a Dispatcher. Store and Executor are required;
// Generator may be nil, in which case generator-path tasks fail with a
// descriptive result instead of a call.
type Options struct {
	Store             task.Store
	Executor          *executor.Executor
	Generator         provider.Generator
	UseTemplates      bool
	MinimizeGenerator bool
	GenerateTimeout   time.Duration
}

// Dispatcher owns its own statistics; there is no process-wide counter.
type Dispatcher struct {
	store    task.Store
	exec     *executor.Executor
	gen      provider.Generator
	useTmpl  bool
	minimize bool
	timeout  time.Duration

	stats CostStats
}

// New creates a Dispatcher from the given options.
func New(opts Options) *Dispatcher {
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = defaultGenerateTimeout
	}
	return &Dispatcher{
		store:    opts.Store,
		exec:     opts.Executor,
		gen:      opts.Generator,
		useTmpl:  opts.UseTemplates,
		minimize: opts.MinimizeGenerator,
		timeout:  opts.GenerateTimeout,
	}
}

// NeedsGenerator reports whether the description requires external
// content generation. Creative keywords win over simple ones, and
// uncertain requests default to the generator path.
func (d *Dispatcher) NeedsGenerator(description string) bool {
	return rules.NeedsGenerator(description)
}

// ExecuteTask classifies the task and runs it on the cheapest viable
// path. Template-satisfiable kinds never touch the generator.
func (d *Dispatcher) ExecuteTask(spec TaskSpec) TaskOutcome {
	kind := rules.Classify(spec.Description)
	log.Printf("[dispatch] task %q classified as %s", spec.Description, kind)

	switch {
	case kind == task.KindFileCreation && d.useTmpl:
		return d.executeTemplateCreation(spec)
	case kind == task.KindFileModification && d.minimize:
		return d.executeRuleBasedModification(spec)
	case kind == task.KindReasoning:
		return d.executeReasoning(spec)
	default:
		return d.executeGeneratorFallback(spec, kind)
	}
}

// ExecuteRuleBased runs the task on the template path only. Tasks the
// templates cannot satisfy fail descriptively; the generator is never
// invoked, regardless of how the task classifies.
func (d *Dispatcher) ExecuteRuleBased(spec TaskSpec) TaskOutcome {
	kind := rules.Classify(spec.Description)
	log.Printf("[dispatch] task %q classified as %s (rule-based only)", spec.Description, kind)

	switch {
	case kind == task.KindFileCreation && d.useTmpl:
		return d.executeTemplateCreation(spec)
	case kind == task.KindFileModification && d.minimize:
		return d.executeRuleBasedModification(spec)
	default:
		d.record(false, 0, 0)
		return TaskOutcome{
			Kind:    kind,
			Message: "no rule matched the request; external generation would be required",
			Result: task.ExecutionResult{
				Action:    task.ActionError,
				ErrorKind: task.ErrorGeneration,
				Error:     "no rule matched, external generation required",
			},
		}
	}
}

// executeTemplateCreation materializes a file from a built-in template
// keyed by detected file type. Zero generator calls.
func (d *Dispatcher) executeTemplateCreation(spec TaskSpec) TaskOutcome {
	target := spec.Target
	if target == "" {
		target = defaultTarget(spec.Description)
	}
	content := spec.Content
	if content == "" {
		content = templateFor(detectFileType(target))
	}

	outcome := d.storeAndExecute(&task.Record{
		Kind:    task.KindFileCreation,
		Target:  target,
		Content: content,
		Status:  task.StatusPending,
	})
	outcome.Kind = task.KindFileCreation
	if outcome.Success {
		outcome.TokensSaved = creationTokensSaved
		outcome.Message = fmt.Sprintf("created %s from built-in template", target)
	}
	d.record(false, 0, outcome.TokensSaved)
	return outcome
}

// executeRuleBasedModification mutates an existing file without a
// generator call, defaulting to appending a style block.
func (d *Dispatcher) executeRuleBasedModification(spec TaskSpec) TaskOutcome {
	if spec.Target == "" {
		d.record(false, 0, 0)
		return TaskOutcome{
			Kind:    task.KindFileModification,
			Message: "rule-based modification requires a target file",
			Result: task.ExecutionResult{
				Action:    task.ActionModificationFailed,
				ErrorKind: task.ErrorTargetMissing,
				Error:     "modification target not specified",
			},
		}
	}

	content := spec.Content
	if content == "" {
		content = defaultStyleBlock
	}
	mode := spec.Mode
	if mode == "" {
		mode = task.ModeAppend
	}

	outcome := d.storeAndExecute(&task.Record{
		Kind:    task.KindFileModification,
		Target:  spec.Target,
		Content: content,
		Mode:    mode,
		Status:  task.StatusPending,
	})
	outcome.Kind = task.KindFileModification
	if outcome.Success {
		outcome.TokensSaved = modificationTokensSaved
		outcome.Message = fmt.Sprintf("modified %s without generator", spec.Target)
	}
	d.record(false, 0, outcome.TokensSaved)
	return outcome
}

// executeReasoning issues exactly one generator call, never more, and
// records the tokens it spent.
func (d *Dispatcher) executeReasoning(spec TaskSpec) TaskOutcome {
	resp, outcome := d.generate(spec.Description)
	outcome.Kind = task.KindReasoning
	if resp == nil {
		d.record(true, 0, 0)
		return outcome
	}

	used := resp.Usage.InputTokens + resp.Usage.OutputTokens
	if used == 0 {
		used = reasoningTokenEstimate
	}
	outcome.Success = true
	outcome.Message = resp.Content
	outcome.TokensUsed = used
	d.record(true, used, 0)
	return outcome
}

// executeGeneratorFallback routes everything else through the
// generator with zero savings recorded.
func (d *Dispatcher) executeGeneratorFallback(spec TaskSpec, kind task.Kind) TaskOutcome {
	resp, outcome := d.generate(spec.Description)
	outcome.Kind = kind
	if resp == nil {
		d.record(true, 0, 0)
		return outcome
	}

	used := resp.Usage.InputTokens + resp.Usage.OutputTokens
	outcome.TokensUsed = used

	if spec.Target != "" {
		fileOutcome := d.storeAndExecute(&task.Record{
			Kind:    task.KindFileCreation,
			Target:  spec.Target,
			Content: provider.ExtractCode(resp.Content),
			Status:  task.StatusPending,
		})
		outcome.Success = fileOutcome.Success
		outcome.TaskID = fileOutcome.TaskID
		outcome.Result = fileOutcome.Result
		outcome.Message = fileOutcome.Message
	} else {
		outcome.Success = true
		outcome.Message = resp.Content
	}
	d.record(true, used, 0)
	return outcome
}

// generate performs the single bounded generator call shared by the
// external paths. A nil response means the outcome already carries the
// failure.
func (d *Dispatcher) generate(prompt string) (*provider.Response, TaskOutcome) {
	if d.gen == nil {
		return nil, TaskOutcome{
			UsedGenerator: true,
			Message:       "external generation required but no generator configured",
			Result: task.ExecutionResult{
				Action:    task.ActionError,
				ErrorKind: task.ErrorGeneration,
				Error:     "no content generator configured",
			},
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	resp, err := d.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, TaskOutcome{
			UsedGenerator:  true,
			GeneratorCalls: 1,
			Message:        fmt.Sprintf("content generation failed: %v", err),
			Result: task.ExecutionResult{
				Action:    task.ActionError,
				ErrorKind: task.ErrorGeneration,
				Error:     err.Error(),
			},
		}
	}
	return resp, TaskOutcome{UsedGenerator: true, GeneratorCalls: 1}
}

// storeAndExecute persists the record with pending status and only then
// hands the id to the executor.
func (d *Dispatcher) storeAndExecute(rec *task.Record) TaskOutcome {
	stored := d.store.Store(rec)
	if !stored.Success {
		return TaskOutcome{
			Message: fmt.Sprintf("store task: %s", stored.Err),
			Result: task.ExecutionResult{
				Action:    task.ActionError,
				ErrorKind: task.ErrorIO,
				Error:     stored.Err,
			},
		}
	}

	result := d.exec.Execute(stored.ID)
	return TaskOutcome{
		Success: result.Success,
		TaskID:  stored.ID,
		Result:  result,
		Message: result.Error,
	}
}

func (d *Dispatcher) record(usedGenerator bool, tokensUsed, tokensSaved int) {
	d.stats.TotalOps++
	if usedGenerator {
		d.stats.GeneratorOps++
		d.stats.TokensUsed += tokensUsed
	} else {
		d.stats.RuleBasedOps++
		d.stats.TokensSaved += tokensSaved
	}
}

// Statistics returns a snapshot of the running counters with the
// derived savings percentage (rule-based ops over total ops).
func (d *Dispatcher) Statistics() CostStats {
	stats := d.stats
	if stats.TotalOps > 0 {
		stats.SavingsPercent = float64(stats.RuleBasedOps) / float64(stats.TotalOps) * 100
	}
	return stats
}

// SavingsEstimate is the result of a batch pre-analysis.
type SavingsEstimate struct {
	TotalTasks          int     `json:"total_tasks"`
	OptimizableTasks    int     `json:"optimizable_tasks"`
	PotentialSavings    int     `json:"potential_savings"`
	OptimizationPercent float64 `json:"optimization_percentage"`
}

// EstimateSavings counts how many of the descriptions the template path
// could satisfy and what that would save in generator tokens.
func EstimateSavings(descriptions []string) SavingsEstimate {
	est := SavingsEstimate{TotalTasks: len(descriptions)}
	for _, desc := range descriptions {
		switch rules.Classify(desc) {
		case task.KindFileCreation, task.KindFileModification:
			est.OptimizableTasks++
		}
	}
	est.PotentialSavings = est.OptimizableTasks * creationTokensSaved
	if est.TotalTasks > 0 {
		est.OptimizationPercent = float64(est.OptimizableTasks) / float64(est.TotalTasks) * 100
	}
	return est
}
