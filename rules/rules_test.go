package rules

import (
	"testing"

	"github.com/GoCodeAlone/torque/task"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		desc string
		want task.Kind
	}{
		{"Create a homepage", task.KindFileCreation},
		{"scaffold the project layout", task.KindFileCreation},
		{"ADD FILE for the readme", task.KindFileCreation},
		{"fix the broken link in the footer", task.KindFileModification},
		{"refactor the settings module", task.KindFileModification},
		{"analyze the request latency", task.KindReasoning},
		{"troubleshoot the login flow", task.KindReasoning},
		{"hello there", task.KindUnknown},
		{"", task.KindUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.desc); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.desc, got, tt.want)
		}
	}
}

func TestClassify_Precedence(t *testing.T) {
	// Creation beats modification beats reasoning.
	if got := Classify("create and then update the page"); got != task.KindFileCreation {
		t.Errorf("creation+modification = %q, want %q", got, task.KindFileCreation)
	}
	if got := Classify("update the plan"); got != task.KindFileModification {
		t.Errorf("modification+reasoning = %q, want %q", got, task.KindFileModification)
	}
	if got := Classify("generate a debugging strategy"); got != task.KindFileCreation {
		t.Errorf("creation+reasoning = %q, want %q", got, task.KindFileCreation)
	}
}

func TestNeedsGenerator(t *testing.T) {
	tests := []struct {
		desc string
		want bool
	}{
		{"Create a simple HTML homepage", false},
		{"make file with standard boilerplate", false},
		{"update the copyright year", false},
		{"write a creative story opener", true},
		{"design a unique landing page", true},
		{"implement a complex sorting algorithm", true},
		// Uncertain descriptions route to the generator.
		{"do the thing", true},
		{"", true},
	}
	for _, tt := range tests {
		if got := NeedsGenerator(tt.desc); got != tt.want {
			t.Errorf("NeedsGenerator(%q) = %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestNeedsGenerator_CreativeBeatsSimple(t *testing.T) {
	// "design" (creative) and "create file"-adjacent wording can co-occur;
	// the creative check runs first.
	desc := "Design a creative landing page, then create file index.html"
	if !NeedsGenerator(desc) {
		t.Errorf("NeedsGenerator(%q) = false, want true", desc)
	}
}
