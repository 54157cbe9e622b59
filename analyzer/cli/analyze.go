package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation/models"
)

func (a *app) keyCmd() *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "key [text]",
		Short: "Print the cache key for a task or URL",
		Long:  "Print the content key used for caching: SHA-256 over the trimmed, lower-cased input.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			key := cache.ComputeKey(text)
			if namespace != "" {
				key = namespace + ":" + key
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", "", "prefix the key with a namespace, e.g. subtasks_cache_v1")
	return cmd
}

func (a *app) subtasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subtasks [task]",
		Short: "Break a task into subtasks with automation estimates",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			return a.withRuntime(cmd, func(rt *generation.Runtime) error {
				res, err := rt.Service.Subtasks(cmd.Context(), task)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func (a *app) workflowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflow [task]",
		Short: "Design an automation workflow for a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			return a.withRuntime(cmd, func(rt *generation.Runtime) error {
				res, err := rt.Service.Workflow(cmd.Context(), task)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func (a *app) tasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks [job text]",
		Short: "List the tasks found in a job description",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			return a.withRuntime(cmd, func(rt *generation.Runtime) error {
				tasks, source := rt.Service.ExtractTasks(cmd.Context(), text)
				return printJSON(cmd, struct {
					Tasks  []string      `json:"tasks"`
					Source models.Source `json:"source"`
				}{tasks, source})
			})
		},
	}
}

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [job text | url]",
		Short: "Analyze a whole job description or posting URL",
		Long: "Analyze splits a job into tasks, estimates subtasks for each concurrently and reports " +
			"the time-weighted automation potential. Reads stdin when no argument is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			return a.withRuntime(cmd, func(rt *generation.Runtime) error {
				analysis, err := rt.Service.AnalyzeJob(cmd.Context(), input)
				if err != nil {
					return err
				}
				return printJSON(cmd, analysis)
			})
		},
	}
}
