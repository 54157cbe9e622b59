package generation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/models"
)

func TestParseJSONOutput(t *testing.T) {
	p := NewOutputParser()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"tasks":["a"]}`, `{"tasks":["a"]}`},
		{"fenced with prose", "Sure!\n```json\n{\"tasks\":[\"a\"]}\n```\nAnything else?", `{"tasks":["a"]}`},
		{"trailing comma", `{"tasks":["a","b",],}`, `{"tasks":["a","b"]}`},
		{"unquoted keys", `{tasks: ["a"]}`, `{"tasks": ["a"]}`},
		{"single quotes", `{'tasks': ['a']}`, `{"tasks": ["a"]}`},
		{"apostrophe in value", `{"tasks":["Kunden's Anfragen beantworten",],}`, `{"tasks":["Kunden's Anfragen beantworten"]}`},
		{"apostrophes with unquoted key", `{tasks: ["Kunden's Anfragen", "Chef's Termine",]}`, `{"tasks":["Kunden's Anfragen","Chef's Termine"]}`},
		{"punctuation in value", `{tasks: ["Plan, Ziel: fertig ]",],}`, `{"tasks":["Plan, Ziel: fertig ]"]}`},
		{"double quote inside single quotes", `{'title': 'Der "Chef" Bericht', 'ok': true,}`, `{"title":"Der \"Chef\" Bericht","ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseJSONOutput(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestParseJSONOutput_Errors(t *testing.T) {
	p := NewOutputParser()

	_, err := p.ParseJSONOutput("I cannot help with that.")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = p.ParseJSONOutput(`{"tasks": [unterminated}`)
	assert.Error(t, err)
}

func TestJSONValidator(t *testing.T) {
	v, err := loadValidator()
	require.NoError(t, err)

	assert.NoError(t, v.Validate(schemaTasks, json.RawMessage(`{"tasks":["Rechnungen prüfen"]}`)))
	assert.NoError(t, v.Validate(schemaSubtasks, json.RawMessage(`{"subtasks":[{"title":"a","automationPotential":42.5}]}`)))

	err = v.Validate(schemaSubtasks, json.RawMessage(`{"subtasks":[]}`))
	assert.ErrorContains(t, err, "schema validation errors")

	err = v.Validate(schemaWorkflow, json.RawMessage(`{"title":"x","nodes":[{"id":"a","label":"A","kind":"robot"},{"id":"b","label":"B","kind":"output"}],"edges":[]}`))
	assert.Error(t, err)

	err = v.Validate("nope", json.RawMessage(`{}`))
	assert.ErrorContains(t, err, "unknown schema")
}

func TestCheckEdges(t *testing.T) {
	wf := models.Workflow{
		Title: "Invoices",
		Nodes: []models.WorkflowNode{
			{ID: "n1", Label: "Invoice received", Kind: models.NodeTrigger},
			{ID: "n2", Label: "Book entry", Kind: models.NodeOutput},
		},
		Edges: []models.WorkflowEdge{{From: "n1", To: "n2"}},
	}
	assert.NoError(t, checkEdges(wf))

	wf.Edges = append(wf.Edges, wf.Edges[0])
	wf.Edges[len(wf.Edges)-1].To = "missing"
	assert.ErrorContains(t, checkEdges(wf), "unknown node")
}
