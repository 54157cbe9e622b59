package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/cache"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation"
)

func (a *app) cacheCmd() *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the response caches",
	}
	cmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "limit to one namespace, e.g. workflow_cache_v1")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show entry counts per namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			var all []cache.Stats
			err := a.eachCache(cmd, namespace, func(ctx context.Context, m generation.Maintainer) error {
				stats, err := m.Stats(ctx)
				if err != nil {
					return err
				}
				all = append(all, stats)
				return nil
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, all)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete expired and unreadable entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.eachCache(cmd, namespace, func(ctx context.Context, m generation.Maintainer) error {
				n, err := m.Sweep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: removed %d\n", m.Namespace(), n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.eachCache(cmd, namespace, func(ctx context.Context, m generation.Maintainer) error {
				n, err := m.Clear(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: cleared %d\n", m.Namespace(), n)
				return nil
			})
		},
	})

	return cmd
}

func (a *app) eachCache(cmd *cobra.Command, namespace string, fn func(context.Context, generation.Maintainer) error) error {
	if !a.cfg.Cache.Enabled {
		return fmt.Errorf("cache is disabled")
	}
	return a.withRuntime(cmd, func(rt *generation.Runtime) error {
		matched := false
		for _, m := range rt.Caches {
			if namespace != "" && m.Namespace() != namespace {
				continue
			}
			matched = true
			if err := fn(cmd.Context(), m); err != nil {
				return fmt.Errorf("%s: %w", m.Namespace(), err)
			}
		}
		if !matched {
			return fmt.Errorf("unknown cache namespace %q", namespace)
		}
		return nil
	})
}
