// kittycore is the command-line front end for the task orchestration
// pipeline: solve a task end to end, recall past runs from semantic memory,
// and list the notes the pipeline persisted.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kittycore/internal/decompose"
	"kittycore/internal/detector"
	"kittycore/internal/kerrors"
	"kittycore/internal/llm"
	"kittycore/internal/logging"
	"kittycore/internal/memory"
	"kittycore/internal/orchestrator"
	"kittycore/internal/team"
	"kittycore/internal/validator"
	"kittycore/internal/vault"
)

type rootOptions struct {
	vaultDir  string
	memoryDir string
	logLevel  string
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "kittycore",
		Short:        "Multi-agent task orchestration with result validation",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetDefaultLevel(logging.ParseLevel(opts.logLevel))
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.vaultDir, "vault", "./kittycore-vault", "vault directory for persisted notes")
	rootCmd.PersistentFlags().StringVar(&opts.memoryDir, "memory-dir", "", "directory for persistent semantic memory (in-memory when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newSolveCmd(opts))
	rootCmd.AddCommand(newRecallCmd(opts))
	rootCmd.AddCommand(newNotesCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSolveCmd(opts *rootOptions) *cobra.Command {
	var (
		workspace      string
		model          string
		baseURL        string
		apiKey         string
		timeout        time.Duration
		maxConcurrency int
		maxAttempts    int
		targetScore    float64
	)

	cmd := &cobra.Command{
		Use:   "solve <task description>",
		Short: "Solve a task end to end with a team of agents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			description := strings.Join(args, " ")

			if apiKey == "" {
				apiKey = firstEnv("KITTYCORE_API_KEY", "OPENAI_API_KEY")
			}
			if baseURL == "" {
				baseURL = os.Getenv("KITTYCORE_BASE_URL")
			}
			if envModel := os.Getenv("KITTYCORE_MODEL"); model == "gpt-4o-mini" && envModel != "" {
				model = envModel
			}

			client, err := llm.NewOpenAIClient(llm.Config{
				APIKey:  apiKey,
				BaseURL: baseURL,
				Model:   model,
				Timeout: timeout,
			})
			if err != nil {
				return err
			}
			client = llm.WrapWithRetry(client, kerrors.DefaultRetryConfig(), kerrors.DefaultCircuitBreakerConfig())

			// Without a key the pipeline must diagnose, not call out blindly.
			var pipelineLLM llm.Client
			if apiKey != "" {
				pipelineLLM = client
			}

			orch, v, err := buildOrchestrator(opts, client, pipelineLLM, workspace, maxConcurrency, maxAttempts, targetScore)
			if err != nil {
				return err
			}

			outcome, err := orch.SolveTask(cmd.Context(), description)
			if err != nil {
				return err
			}
			printOutcome(cmd, outcome, v)
			if outcome.Status != "completed" {
				os.Exit(2)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", "./workspace", "directory agents write artifacts under")
	cmd.Flags().StringVar(&model, "model", "gpt-4o-mini", "model name")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "OpenAI-compatible API base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (falls back to KITTYCORE_API_KEY, OPENAI_API_KEY)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "per-call model timeout")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 4, "maximum concurrent agents")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "maximum improvement attempts per subtask")
	cmd.Flags().Float64Var(&targetScore, "target-score", 0.6, "validation score below which improvement triggers")
	return cmd
}

func buildOrchestrator(opts *rootOptions, client, pipelineLLM llm.Client, workspace string, maxConcurrency, maxAttempts int, targetScore float64) (*orchestrator.Orchestrator, *vault.Vault, error) {
	v, err := vault.New(vault.Config{
		Root:   opts.vaultDir,
		Logger: logging.NewComponentLogger("vault"),
	})
	if err != nil {
		return nil, nil, err
	}

	mem, err := memory.NewIndex(memory.Config{
		PersistDir: opts.memoryDir,
		Logger:     logging.NewComponentLogger("memory"),
	}, nil)
	if err != nil {
		return nil, nil, err
	}

	decomposer, err := decompose.New(decompose.Config{
		LLM:    client,
		Logger: logging.NewComponentLogger("decompose"),
	})
	if err != nil {
		return nil, nil, err
	}

	executor, err := team.NewExecutor(team.ExecutorConfig{
		LLM:            client,
		Logger:         logging.NewComponentLogger("team"),
		Workspace:      workspace,
		MaxConcurrency: maxConcurrency,
	})
	if err != nil {
		return nil, nil, err
	}

	det, err := detector.New(detector.Config{
		Logger: logging.NewComponentLogger("detector"),
	})
	if err != nil {
		return nil, nil, err
	}

	val, err := validator.New(validator.Config{
		LLM:    client,
		Logger: logging.NewComponentLogger("validator"),
	})
	if err != nil {
		return nil, nil, err
	}

	improver, err := team.NewImprover(team.ImproverConfig{
		Validator:   val,
		Logger:      logging.NewComponentLogger("improver"),
		TargetScore: targetScore,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return nil, nil, err
	}

	orch, err := orchestrator.New(orchestrator.Dependencies{
		LLM:        pipelineLLM,
		Decomposer: decomposer,
		Executor:   executor,
		Improver:   improver,
		Detector:   det,
		Validator:  val,
		Vault:      v,
		Memory:     mem,
		Logger:     logging.NewComponentLogger("orchestrator"),
	})
	if err != nil {
		return nil, nil, err
	}
	return orch, v, nil
}

func printOutcome(cmd *cobra.Command, outcome *orchestrator.Outcome, v *vault.Vault) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "task:     %s\n", outcome.TaskID)
	fmt.Fprintf(out, "status:   %s\n", outcome.Status)
	fmt.Fprintf(out, "quality:  %.2f\n", outcome.QualityScore)
	fmt.Fprintf(out, "duration: %s\n", outcome.Duration.Round(time.Millisecond))
	if outcome.Message != "" {
		fmt.Fprintf(out, "message:  %s\n", outcome.Message)
	}
	if outcome.ErrorKind != "" {
		fmt.Fprintf(out, "error:    %s\n", outcome.ErrorKind)
	}
	if len(outcome.CreatedFiles) > 0 {
		fmt.Fprintln(out, "files:")
		for _, f := range outcome.CreatedFiles {
			fmt.Fprintf(out, "  - %s\n", f)
		}
	}
	if len(outcome.Issues) > 0 {
		fmt.Fprintln(out, "issues:")
		for _, issue := range outcome.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}
	fmt.Fprintf(out, "vault:    %s (%d notes)\n", v.Root(), v.Count())
}

func newRecallCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search semantic memory for past runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, err := memory.NewIndex(memory.Config{
				PersistDir: opts.memoryDir,
				Logger:     logging.NewComponentLogger("memory"),
			}, nil)
			if err != nil {
				return err
			}

			matches, err := mem.Recall(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no memories found")
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(cmd.OutOrStdout(), "%.3f  %s  %s\n", m.Score, m.ID, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum results")
	return cmd
}

func newNotesCmd(opts *rootOptions) *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List notes persisted in the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := vault.New(vault.Config{
				Root:   opts.vaultDir,
				Logger: logging.NewComponentLogger("vault"),
			})
			if err != nil {
				return err
			}

			filter := map[string]string{}
			if folder != "" {
				filter["folder"] = folder
			}
			notes, err := v.Search(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(notes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no notes found")
				return nil
			}
			for _, note := range notes {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-28s %s\n", note.Folder, note.ID, note.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "restrict to one folder (tasks, subtasks, agents, results, system)")
	return cmd
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
