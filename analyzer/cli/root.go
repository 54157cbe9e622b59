// Package cli implements the analyzer command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/automation-analyzer/analyzer"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/config"
	"github.com/ZanzyTHEbar/automation-analyzer/analyzer/generation"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitUsageError   = 2
)

// app holds state shared by every subcommand of one invocation.
type app struct {
	configPath string
	logLevel   string
	pretty     bool

	loader *config.Loader
	cfg    *config.Config
	logger zerolog.Logger
	// ready is set once flags and config were accepted; errors before that are usage errors.
	ready bool
}

// Run executes the root command and returns an exit code.
func Run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		// Cobra already prints the error
		if !a.ready {
			return ExitUsageError
		}
		return ExitRuntimeError
	}
	return ExitSuccess
}

// NewRootCmd returns a fresh command tree.
func NewRootCmd() *cobra.Command {
	return (&app{}).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "analyzer",
		Short: "Estimate how much of a job can be automated",
		Long: "analyzer breaks tasks into subtasks, designs automation workflows and scores whole job " +
			"descriptions. Results from the language model are cached by content; without a model " +
			"a rule-based classifier answers.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default: ./config.yaml or "+internal.DefaultConfigPath+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.pretty, "pretty", false, "human readable logs on stderr")

	root.AddCommand(a.keyCmd())
	root.AddCommand(a.subtasksCmd())
	root.AddCommand(a.workflowCmd())
	root.AddCommand(a.tasksCmd())
	root.AddCommand(a.analyzeCmd())
	root.AddCommand(a.cacheCmd())
	root.AddCommand(a.configCmd())
	root.AddCommand(versionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	loader := config.NewLoader(a.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var w io.Writer = cmd.ErrOrStderr()
	if a.pretty || cfg.Log.Pretty || isTerminal(w) {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	a.loader = loader
	a.cfg = cfg
	a.logger = zerolog.New(w).Level(lvl).With().Timestamp().Str("app", internal.DefaultAppName).Logger()
	a.ready = true
	cmd.SilenceUsage = true
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// withRuntime builds the service graph for one command and tears it down afterwards.
func (a *app) withRuntime(cmd *cobra.Command, fn func(rt *generation.Runtime) error) error {
	rt, err := generation.NewFactory(a.cfg, a.logger).Build(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			a.logger.Warn().Err(cerr).Msg("Shutdown incomplete")
		}
	}()
	return fn(rt)
}

// inputText joins args, or reads stdin when there are none or the only arg is "-".
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print analyzer version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", internal.DefaultAppName, version)
		},
	}
}
