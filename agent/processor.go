// Package agent coordinates the engine end to end: it routes a raw
// user request through the dispatcher's generator gate, persists the
// resulting task records, executes them, and appends session history.
package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/GoCodeAlone/torque/dispatch"
	"github.com/GoCodeAlone/torque/executor"
	"github.com/GoCodeAlone/torque/memory"
	"github.com/GoCodeAlone/torque/provider"
	"github.com/GoCodeAlone/torque/rules"
	"github.com/GoCodeAlone/torque/task"
)

const defaultPlanTimeout = 60 * time.Second

// Options wires a Processor. Store, Executor, Dispatcher and Memory
// are required; Generator may be nil.
type Options struct {
	Store           task.Store
	Executor        *executor.Executor
	Dispatcher      *dispatch.Dispatcher
	Memory          *memory.SessionMemory
	Generator       provider.Generator
	SessionID       string
	GenerateTimeout time.Duration
}

// Processor is the top-level coordinator. Each instance owns its own
// request counters.
type Processor struct {
	store     task.Store
	exec      *executor.Executor
	disp      *dispatch.Dispatcher
	mem       *memory.SessionMemory
	gen       provider.Generator
	sessionID string
	timeout   time.Duration

	totalRequests     int
	generatorRequests int
	ruleBasedRequests int
}

// New creates a Processor from the given options.
func New(opts Options) *Processor {
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = defaultPlanTimeout
	}
	if opts.SessionID == "" {
		opts.SessionID = "default"
	}
	return &Processor{
		store:     opts.Store,
		exec:      opts.Executor,
		disp:      opts.Dispatcher,
		mem:       opts.Memory,
		gen:       opts.Generator,
		sessionID: opts.SessionID,
		timeout:   opts.GenerateTimeout,
	}
}

// Outcome reports how a request was processed.
type Outcome struct {
	Success       bool                   `json:"success"`
	UsedGenerator bool                   `json:"used_generator"`
	RuleBased     bool                   `json:"rule_based"`
	FilesCreated  int                    `json:"files_created"`
	Message       string                 `json:"message,omitempty"`
	Results       []task.ExecutionResult `json:"results,omitempty"`
	Stats         dispatch.CostStats     `json:"stats"`
}

// Process handles one user request end to end. Requests that need the
// generator but have none configured fail descriptively, without a
// call.
func (p *Processor) Process(request string) Outcome {
	p.totalRequests++
	log.Printf("[agent] processing request: %s", request)

	if rules.NeedsGenerator(request) {
		if p.gen == nil {
			return p.finish(Outcome{
				UsedGenerator: true,
				Message:       "request requires external generation but no generator is configured",
			})
		}
		p.generatorRequests++
		return p.finish(p.processWithGenerator(request))
	}

	p.ruleBasedRequests++
	return p.finish(p.processRuleBased(request))
}

func (p *Processor) finish(o Outcome) Outcome {
	o.Stats = p.disp.Statistics()
	return o
}

// processWithGenerator obtains a structured plan from the generator
// and turns it into stored, executed file_creation records.
func (p *Processor) processWithGenerator(request string) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	resp, err := p.gen.Generate(ctx, planPrompt(request))
	if err != nil {
		return Outcome{
			UsedGenerator: true,
			Message:       fmt.Sprintf("content generation failed: %v", err),
		}
	}

	plan, err := parsePlan(resp.Content)
	if err != nil {
		return Outcome{
			UsedGenerator: true,
			Message:       fmt.Sprintf("generator returned an unusable plan: %v", err),
		}
	}

	if plan.TaskType == planTaskTypeMulti {
		return p.executePlannedFiles(plan.Tasks)
	}
	return p.executePlannedFiles([]plannedFile{{
		TargetFile: plan.TargetFile,
		Content:    plan.Content,
	}})
}

// executePlannedFiles persists every planned file as a pending record
// before any execution starts, then executes the batch in order.
func (p *Processor) executePlannedFiles(files []plannedFile) Outcome {
	records := make([]*task.Record, 0, len(files))
	for _, f := range files {
		records = append(records, &task.Record{
			Kind:    task.KindFileCreation,
			Target:  f.TargetFile,
			Content: f.Content,
			Status:  task.StatusPending,
		})
	}

	stored := p.store.StoreBatch(records)
	if stored.StoredCount == 0 {
		return Outcome{
			UsedGenerator: true,
			Message:       "no planned task could be stored",
		}
	}

	batch := p.exec.ExecuteBatch(stored.IDs)
	for _, id := range stored.IDs {
		p.appendHistory(id)
	}

	return Outcome{
		Success:       batch.Failed == 0,
		UsedGenerator: true,
		FilesCreated:  batch.Succeeded,
		Message:       fmt.Sprintf("%d of %d planned files created", batch.Succeeded, len(files)),
		Results:       batch.Results,
	}
}

// processRuleBased satisfies the request with templates only. This
// path makes zero generator calls: requests the templates cannot
// satisfy fail descriptively instead of falling through.
func (p *Processor) processRuleBased(request string) Outcome {
	result := p.disp.ExecuteRuleBased(dispatch.TaskSpec{Description: request})
	if result.TaskID != "" {
		p.appendHistory(result.TaskID)
	}

	outcome := Outcome{
		Success:   result.Success,
		RuleBased: true,
		Message:   result.Message,
	}
	if result.Success && result.Result.Action == task.ActionFileCreated {
		outcome.FilesCreated = 1
	}
	if result.TaskID != "" {
		outcome.Results = []task.ExecutionResult{result.Result}
	}
	return outcome
}

// appendHistory snapshots the record post-execution. History is
// observational; failures are logged, never propagated.
func (p *Processor) appendHistory(taskID string) {
	rec, err := p.store.Get(taskID)
	if err != nil {
		log.Printf("[agent] history snapshot for task %s: %v", taskID, err)
		return
	}
	err = p.mem.StoreExecution(&memory.HistoryEntry{
		SessionID: p.sessionID,
		TaskID:    taskID,
		Record:    rec,
	})
	if err != nil {
		log.Printf("[agent] append history for task %s: %v", taskID, err)
	}
}

// OptimizationSummary reports per-process request routing and the
// derived savings percentage.
type OptimizationSummary struct {
	TotalRequests         int     `json:"total_requests"`
	GeneratorRequests     int     `json:"generator_requests"`
	RuleBasedRequests     int     `json:"rule_based_requests"`
	SavingsPercent        float64 `json:"cost_savings_percentage"`
	GeneratorUsagePercent float64 `json:"generator_usage_percentage"`
}

// OptimizationSummary returns the processor's routing counters.
func (p *Processor) OptimizationSummary() OptimizationSummary {
	s := OptimizationSummary{
		TotalRequests:     p.totalRequests,
		GeneratorRequests: p.generatorRequests,
		RuleBasedRequests: p.ruleBasedRequests,
	}
	if p.totalRequests > 0 {
		s.SavingsPercent = float64(p.ruleBasedRequests) / float64(p.totalRequests) * 100
		s.GeneratorUsagePercent = float64(p.generatorRequests) / float64(p.totalRequests) * 100
	}
	return s
}
