package research

import (
	"errors"
	"strings"
	"testing"

	"github.com/dshills/stategraph/graph"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  Decision
		tasks int
	}{
		{
			name:  "in scope",
			text:  `{"response":"Looking into it.","in_scope":true,"research_tasks":[{"topic":"budget","description":"council vote"},{"topic":"transit"}]}`,
			want:  Decision{Response: "Looking into it.", InScope: true},
			tasks: 2,
		},
		{
			name: "out of scope",
			text: `{"response":"Hello!","in_scope":false,"research_tasks":[]}`,
			want: Decision{Response: "Hello!"},
		},
		{
			name:  "fenced",
			text:  "```json\n{\"response\":\"ok\",\"in_scope\":true,\"research_tasks\":[{\"topic\":\"floods\"}]}\n```",
			want:  Decision{Response: "ok", InScope: true},
			tasks: 1,
		},
		{
			name:  "repaired trailing comma and single quotes",
			text:  `{'response': 'ok', 'in_scope': true, 'research_tasks': [{'topic': 'floods'},],}`,
			want:  Decision{Response: "ok", InScope: true},
			tasks: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(tt.text)
			if err != nil {
				t.Fatalf("ParseDecision: %v", err)
			}
			if d.Response != tt.want.Response || d.InScope != tt.want.InScope || len(d.ResearchTasks) != tt.tasks {
				t.Errorf("got %+v", d)
			}
		})
	}
}

func TestParseDecision_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{name: "empty", text: "  ", reason: "empty decision"},
		{name: "in scope without tasks", text: `{"response":"ok","in_scope":true}`, reason: "research_tasks is empty"},
		{name: "in scope with null tasks", text: `{"response":"ok","in_scope":true,"research_tasks":null}`, reason: "research_tasks is empty"},
		{name: "out of scope without response", text: `{"in_scope":false}`, reason: "no response"},
		{name: "task without topic", text: `{"response":"ok","in_scope":true,"research_tasks":[{"topic":" "}]}`, reason: "research_tasks[0] has no topic"},
		{name: "wrong type", text: `{"response":"ok","in_scope":"yes","research_tasks":[]}`, reason: "does not match schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDecision(tt.text)
			var mde *graph.MalformedDecisionError
			if !errors.As(err, &mde) {
				t.Fatalf("expected *MalformedDecisionError, got %v", err)
			}
			if !strings.Contains(mde.Reason, tt.reason) {
				t.Errorf("Reason = %q, want it to contain %q", mde.Reason, tt.reason)
			}
			if mde.Raw != tt.text {
				t.Errorf("Raw = %q", mde.Raw)
			}
		})
	}
}
