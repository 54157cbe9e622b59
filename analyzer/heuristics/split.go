package heuristics

import (
	"regexp"
	"strings"
)

var (
	bulletPrefix    = regexp.MustCompile(`^\s*(?:[-*•·–]|\d+[.)])\s*`)
	sentenceBreaker = regexp.MustCompile(`[.;!?]+\s+`)
)

// minTaskLen drops headings and fragments like "Tasks:" or "Your profile".
const minTaskLen = 12

// SplitTasks extracts task candidates from a job description: one per bullet or line, or
// one per sentence when the text is a single paragraph. Duplicates (case-insensitive)
// are dropped and at most limit tasks are returned; limit <= 0 means no limit.
func SplitTasks(jobText string, limit int) []string {
	var candidates []string
	for _, line := range strings.Split(jobText, "\n") {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if strings.HasSuffix(line, ":") {
			// section heading
			continue
		}
		line = strings.TrimSpace(strings.TrimRight(line, ".;"))
		if line != "" {
			candidates = append(candidates, line)
		}
	}

	if len(candidates) == 1 {
		paragraph := candidates[0]
		candidates = candidates[:0]
		for _, sentence := range sentenceBreaker.Split(paragraph, -1) {
			sentence = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sentence), ".;!?"))
			if sentence != "" {
				candidates = append(candidates, sentence)
			}
		}
	}

	seen := make(map[string]bool)
	var tasks []string
	for _, c := range candidates {
		if len([]rune(c)) < minTaskLen {
			continue
		}
		key := strings.ToLower(strings.Join(strings.Fields(c), " "))
		if seen[key] {
			continue
		}
		seen[key] = true
		tasks = append(tasks, c)
		if limit > 0 && len(tasks) == limit {
			break
		}
	}
	return tasks
}
