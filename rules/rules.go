// Package rules holds the keyword tables that route tasks without a
// generator call. Classification and the generator gate read the same
// ordered tables, so their precedence cannot drift apart.
package rules

import (
	"strings"

	"github.com/GoCodeAlone/torque/task"
)

// kindRule maps a keyword list to the kind it selects. Rules are
// evaluated in order; the first list with a match wins.
type kindRule struct {
	kind     task.Kind
	keywords []string
}

// Precedence is fixed: creation beats modification beats reasoning.
var kindRules = []kindRule{
	{task.KindFileCreation, []string{
		"create", "new file", "make", "generate", "build", "add file",
		"setup", "initialize", "scaffold", "bootstrap",
	}},
	{task.KindFileModification, []string{
		"modify", "update", "change", "edit", "fix", "improve",
		"style", "format", "refactor", "optimize",
	}},
	{task.KindReasoning, []string{
		"analyze", "review", "suggest", "design", "implement algorithm",
		"debug", "troubleshoot", "performance", "architecture",
		"algorithm", "logic", "strategy", "plan",
	}},
}

// Descriptions matching a creative keyword always route to the
// generator, even when a simple keyword also matches.
var creativeKeywords = []string{
	"creative", "story", "narrative", "unique", "design",
	"algorithm", "complex", "generate", "innovative",
}

var simpleKeywords = []string{
	"create file", "make file", "add file", "simple",
	"basic", "standard", "update", "modify",
}

// Classify maps a free-text description to a task kind. It is
// deterministic, case-insensitive, and never fails: descriptions
// matching no rule yield KindUnknown.
func Classify(description string) task.Kind {
	desc := strings.ToLower(description)
	for _, rule := range kindRules {
		if containsAny(desc, rule.keywords) {
			return rule.kind
		}
	}
	return task.KindUnknown
}

// NeedsGenerator reports whether a description requires the external
// content generator. Creative keywords are checked before simple ones;
// uncertain descriptions default to the generator path rather than
// guessing.
func NeedsGenerator(description string) bool {
	desc := strings.ToLower(description)
	if containsAny(desc, creativeKeywords) {
		return true
	}
	if containsAny(desc, simpleKeywords) {
		return false
	}
	return true
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
