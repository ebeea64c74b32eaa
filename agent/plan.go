package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/torque/provider"
)

// executionPlan is the structured plan the generator returns. Single
// file plans fill TargetFile/Content; multi-file plans fill Tasks.
type executionPlan struct {
	TaskType   string        `json:"task_type"`
	TargetFile string        `json:"target_file,omitempty"`
	Content    string        `json:"content,omitempty"`
	Reasoning  string        `json:"reasoning,omitempty"`
	Tasks      []plannedFile `json:"tasks,omitempty"`
}

type plannedFile struct {
	TargetFile string `json:"target_file"`
	Content    string `json:"content"`
}

const planTaskTypeMulti = "multi_file_creation"

// planPrompt instructs the generator to answer with a machine-readable
// plan instead of prose.
func planPrompt(request string) string {
	return fmt.Sprintf(`Convert this user request into a structured task plan.
Request: %s

Respond with JSON only, no commentary.

Single file format:
{
  "task_type": "file_creation",
  "target_file": "path/to/file",
  "content": "file content here",
  "reasoning": "explanation of the plan"
}

Multi-file format:
{
  "task_type": "multi_file_creation",
  "tasks": [
    {"target_file": "file1", "content": "content1"},
    {"target_file": "file2", "content": "content2"}
  ],
  "reasoning": "explanation"
}`, request)
}

// parsePlan decodes a generator response into an execution plan. The
// response may wrap the JSON in a code fence.
func parsePlan(response string) (*executionPlan, error) {
	payload := strings.TrimSpace(provider.ExtractCode(response))
	if payload == "" {
		return nil, fmt.Errorf("empty plan response")
	}

	var plan executionPlan
	if err := json.Unmarshal([]byte(payload), &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	if plan.TaskType == planTaskTypeMulti {
		if len(plan.Tasks) == 0 {
			return nil, fmt.Errorf("multi-file plan lists no files")
		}
		for i, f := range plan.Tasks {
			if f.TargetFile == "" {
				return nil, fmt.Errorf("multi-file plan task %d has no target", i)
			}
		}
		return &plan, nil
	}

	if plan.TargetFile == "" {
		return nil, fmt.Errorf("plan has no target file")
	}
	return &plan, nil
}
