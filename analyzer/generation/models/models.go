package models

import "time"

// Source records which path produced a result.
type Source string

const (
	SourceAI        Source = "ai"
	SourceCache     Source = "cache"
	SourceHeuristic Source = "heuristic"
)

// Subtask is one step of a task with its estimated automation potential.
type Subtask struct {
	Title               string   `json:"title"`
	AutomationPotential int      `json:"automationPotential"` // 0-100
	EstimatedMinutes    int      `json:"estimatedMinutes"`
	Category            string   `json:"category,omitempty"`
	Tools               []string `json:"tools,omitempty"`
}

// NodeKind classifies a workflow node.
type NodeKind string

const (
	NodeTrigger NodeKind = "trigger"
	NodeAction  NodeKind = "action"
	NodeAI      NodeKind = "ai"
	NodeOutput  NodeKind = "output"
)

// WorkflowNode is a single step in a workflow blueprint.
type WorkflowNode struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Kind  NodeKind `json:"kind"`
}

// WorkflowEdge connects two nodes by ID.
type WorkflowEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Workflow is an automation blueprint for a task.
type Workflow struct {
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Nodes        []WorkflowNode `json:"nodes"`
	Edges        []WorkflowEdge `json:"edges"`
	Integrations []string       `json:"integrations,omitempty"`
}

// SubtaskResult is a subtask list together with how it was produced.
type SubtaskResult struct {
	Subtasks []Subtask `json:"subtasks"`
	Source   Source    `json:"source"`
}

// WorkflowResult is a workflow together with how it was produced.
type WorkflowResult struct {
	Workflow Workflow `json:"workflow"`
	Source   Source   `json:"source"`
}

// TaskAnalysis is the per-task part of a job analysis.
type TaskAnalysis struct {
	Task                string    `json:"task"`
	Category            string    `json:"category"`
	AutomationPotential float64   `json:"automationPotential"`
	EstimatedMinutes    int       `json:"estimatedMinutes"`
	Subtasks            []Subtask `json:"subtasks"`
	Tools               []string  `json:"tools,omitempty"`
	Source              Source    `json:"source"`
}

// Analysis is the result of analyzing a job description.
type Analysis struct {
	ID               string         `json:"id"`
	Input            string         `json:"input"`
	SourceURL        string         `json:"sourceUrl,omitempty"`
	Tasks            []TaskAnalysis `json:"tasks"`
	OverallPotential float64        `json:"overallPotential"`
	CreatedAt        time.Time      `json:"createdAt"`
}
