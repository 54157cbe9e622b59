// Package heuristics is the keyword-based fallback used when the AI path is
// unavailable or too slow. Results are non-authoritative estimates.
package heuristics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/models"
)

// Match is the outcome of classifying a text.
type Match struct {
	Rule    Rule
	Default bool // no rule in the table matched
}

type compiledRule struct {
	rule     Rule
	keywords *regexp.Regexp
}

// Classifier evaluates an ordered rule table. The first matching rule wins.
type Classifier struct {
	rules    []compiledRule
	fallback Rule
}

// NewClassifier compiles rules in the given order. With no rules the default table is used.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	c := &Classifier{fallback: defaultRule}
	for _, r := range rules {
		c.rules = append(c.rules, compiledRule{rule: r, keywords: keywordMatcher(r.Keywords)})
	}
	return c
}

// keywordMatcher matches any keyword at the start of a word. Letters outside ASCII count
// as word characters, so "prüf" does not match inside "überprüfen".
func keywordMatcher(keywords []string) *regexp.Regexp {
	if len(keywords) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(kw)))
	}
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)`)
}

func (cr compiledRule) matches(normalized string) bool {
	if cr.keywords != nil && cr.keywords.MatchString(normalized) {
		return true
	}
	return cr.rule.Pattern != nil && cr.rule.Pattern.MatchString(normalized)
}

func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Classify returns the first rule matching text, or the default rule.
func (c *Classifier) Classify(text string) Match {
	normalized := normalize(text)
	for _, cr := range c.rules {
		if cr.matches(normalized) {
			return Match{Rule: cr.rule}
		}
	}
	return Match{Rule: c.fallback, Default: true}
}

// RecommendTools collects the tools of every matching rule in table order, without duplicates.
func (c *Classifier) RecommendTools(text string) []string {
	normalized := normalize(text)
	seen := make(map[string]bool)
	var tools []string
	add := func(names []string) {
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				tools = append(tools, name)
			}
		}
	}

	for _, cr := range c.rules {
		if cr.matches(normalized) {
			add(cr.rule.Tools)
		}
	}
	if len(tools) == 0 {
		add(c.fallback.Tools)
	}
	return tools
}

// FallbackSubtasks derives a prepare/execute/review breakdown of task from its rule.
func (c *Classifier) FallbackSubtasks(task string) []models.Subtask {
	m := c.Classify(task)
	title := strings.TrimSpace(task)
	p := m.Rule.Potential

	return []models.Subtask{
		{
			Title:               fmt.Sprintf("Prepare inputs for %s", title),
			AutomationPotential: clampPotential(p + 10),
			EstimatedMinutes:    15,
			Category:            m.Rule.Category,
			Tools:               m.Rule.Tools,
		},
		{
			Title:               fmt.Sprintf("Carry out %s", title),
			AutomationPotential: clampPotential(p),
			EstimatedMinutes:    30,
			Category:            m.Rule.Category,
			Tools:               m.Rule.Tools,
		},
		{
			Title:               fmt.Sprintf("Review and finalize %s", title),
			AutomationPotential: clampPotential(p - 30),
			EstimatedMinutes:    10,
			Category:            m.Rule.Category,
		},
	}
}

// FallbackWorkflow builds a linear trigger -> steps -> output workflow for task.
func (c *Classifier) FallbackWorkflow(task string) models.Workflow {
	m := c.Classify(task)

	wf := models.Workflow{
		Title:        strings.TrimSpace(task),
		Description:  fmt.Sprintf("Heuristic %s workflow", m.Rule.Category),
		Integrations: m.Rule.Tools,
	}

	wf.Nodes = append(wf.Nodes, models.WorkflowNode{ID: "n1", Label: m.Rule.Trigger, Kind: models.NodeTrigger})
	for i, step := range m.Rule.Steps {
		kind := models.NodeAction
		if i == 1 {
			// the middle step is where a model does the work
			kind = models.NodeAI
		}
		wf.Nodes = append(wf.Nodes, models.WorkflowNode{ID: fmt.Sprintf("n%d", i+2), Label: step, Kind: kind})
	}
	wf.Nodes = append(wf.Nodes, models.WorkflowNode{
		ID:    fmt.Sprintf("n%d", len(wf.Nodes)+1),
		Label: "Result delivered",
		Kind:  models.NodeOutput,
	})

	for i := 1; i < len(wf.Nodes); i++ {
		wf.Edges = append(wf.Edges, models.WorkflowEdge{From: wf.Nodes[i-1].ID, To: wf.Nodes[i].ID})
	}
	return wf
}

func clampPotential(p int) int {
	return max(0, min(100, p))
}
