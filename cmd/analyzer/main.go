// Analyzer estimates how much of a job can be automated.
//
// Usage:
//
//	analyzer subtasks "Erstelle Social Media Posts"   # subtasks with automation estimates
//	analyzer workflow "Rechnungen prüfen"             # automation workflow blueprint
//	analyzer analyze https://jobs.example.com/42      # score a whole job posting
//	analyzer cache stats                              # inspect the response caches
package main

import (
	"os"

	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cli"
)

func main() {
	os.Exit(cli.Run())
}
