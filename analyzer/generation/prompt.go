package generation

import (
	"strings"

	ports "github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/ports"
)

const (
	subtasksSystem = `You are an analyst estimating how far office and knowledge work can be automated.
Split the task the user gives you into 3 to 8 concrete subtasks.
Answer with a single JSON object and nothing else:
{"subtasks":[{"title":string,"automationPotential":number 0-100,"estimatedMinutes":number,"category":string,"tools":[string]}]}
Answer in the language of the task.`

	workflowSystem = `You design automation workflows for business tasks.
Describe a workflow that automates the task the user gives you.
Answer with a single JSON object and nothing else:
{"title":string,"description":string,"nodes":[{"id":string,"label":string,"kind":"trigger"|"action"|"ai"|"output"}],"edges":[{"from":node id,"to":node id}],"integrations":[string]}
The first node is the trigger and the last node is the output.`

	tasksSystem = `You read job descriptions and list the recurring tasks of the role.
Ignore requirements, benefits and company information.
Answer with a single JSON object and nothing else: {"tasks":[string]}
Keep each task short and in the language of the posting.`
)

// PromptBuilder assembles provider inputs for each generation kind.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// Build normalizes newlines and whitespace so equal inputs produce equal prompts.
func (b *PromptBuilder) Build(system, user string, meta map[string]string) ports.PromptInput {
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	return ports.PromptInput{
		System:   norm(system),
		Messages: []ports.PromptMessage{{Role: "user", Content: norm(user)}},
		Meta:     meta,
	}
}

func (b *PromptBuilder) Subtasks(task string) ports.PromptInput {
	return b.Build(subtasksSystem, task, map[string]string{"kind": "subtasks"})
}

func (b *PromptBuilder) Workflow(task string) ports.PromptInput {
	return b.Build(workflowSystem, task, map[string]string{"kind": "workflow"})
}

func (b *PromptBuilder) Tasks(jobText string) ports.PromptInput {
	return b.Build(tasksSystem, jobText, map[string]string{"kind": "tasks"})
}
