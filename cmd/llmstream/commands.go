package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiarch/llmstream/config"
	"github.com/aiarch/llmstream/llm"
	"github.com/aiarch/llmstream/providers"
	"github.com/aiarch/llmstream/utils"
)

func newStreamCmd(flags *globalFlags) *cobra.Command {
	var (
		promptsFile string
		retries     int
		stats       bool
	)

	cmd := &cobra.Command{
		Use:   "stream [prompt...]",
		Short: "Stream the answer to a prompt",
		Example: `  llmstream stream "Explain Go channels"
  llmstream stream --file prompts.txt --retries 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompts, err := collectPrompts(args, promptsFile)
			if err != nil {
				return err
			}

			client, stop, err := flags.newClient(cmd)
			if err != nil {
				return err
			}
			defer stop()

			out := cmd.OutOrStdout()
			var failed int
			for i, prompt := range prompts {
				if len(prompts) > 1 {
					printf(out, "## %d. %s\n\n", i+1, prompt)
				}

				h := llm.Handlers{
					OnChunk: func(text string) { printf(out, "%s", text) },
					OnComplete: func(contentProduced bool) {
						if contentProduced {
							printf(out, "\n")
						}
					},
				}

				var res llm.Result
				if retries > 0 {
					strategy := llm.NewDefaultRetryStrategy()
					strategy.MaxRetries = retries
					res = client.RequestWithRetry(cmd.Context(), prompt, h, strategy)
				} else {
					res = client.Request(cmd.Context(), prompt, h)
				}

				if res.Err != nil {
					failed++
					printf(cmd.ErrOrStderr(), "Error: %v\n", res.Err)
					if llm.IsErrorType(res.Err, llm.ErrorTypeCancelled) {
						break
					}
				}
				if stats {
					printStats(cmd, res)
				}
				if len(prompts) > 1 {
					printf(out, "\n")
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d requests failed", failed, len(prompts))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&promptsFile, "file", "f", "", "read prompts from a .txt (one per line) or .jsonl file")
	cmd.Flags().IntVar(&retries, "retries", 0, "retry connection failures, 429 and 5xx up to this many times")
	cmd.Flags().BoolVar(&stats, "stats", false, "print outcome, chunk count, usage and duration to stderr")
	return cmd
}

func newGenerateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "generate [prompt...]",
		Short: "Send a prompt without streaming and print the whole answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, stop, err := flags.newClient(cmd)
			if err != nil {
				return err
			}
			defer stop()

			text, err := client.Generate(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", text)
			return nil
		},
	}
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the YAML config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.Schema()
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", schema)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with the API key masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(w, "provider\t%s\n", cfg.Provider)
			printf(w, "model\t%s\n", cfg.Model)
			printf(w, "base_url\t%s\n", cfg.BaseURL)
			printf(w, "api_key\t%s\n", maskKey(cfg.APIKey))
			printf(w, "header_timeout\t%s\n", cfg.HeaderTimeout)
			printf(w, "requests_per_second\t%g\n", cfg.RequestsPerSecond)
			printf(w, "log_level\t%s\n", cfg.LogLevel)
			return w.Flush()
		},
	})

	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List provider presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := providers.GetDefaultRegistry()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(w, "NAME\tBASE URL\tDEFAULT MODEL\tAPI KEY\n")
			for _, name := range registry.Names() {
				cfg, ok := registry.GetProviderConfig(name)
				if !ok {
					continue
				}
				key := "required"
				if cfg.Keyless {
					key = "none"
				}
				printf(w, "%s\t%s\t%s\t%s\n", name, cfg.BaseURL, cfg.DefaultModel, key)
			}
			return w.Flush()
		},
	}
}

func collectPrompts(args []string, promptsFile string) ([]string, error) {
	if promptsFile != "" {
		if len(args) > 0 {
			return nil, errors.New("pass either a prompt or --file, not both")
		}
		prompts, err := utils.ReadPromptsFromFile(promptsFile)
		if err != nil {
			return nil, err
		}
		if len(prompts) == 0 {
			return nil, fmt.Errorf("no prompts in %s", promptsFile)
		}
		return prompts, nil
	}
	if len(args) == 0 {
		return nil, errors.New("a prompt is required")
	}
	return []string{strings.Join(args, " ")}, nil
}

func printStats(cmd *cobra.Command, res llm.Result) {
	w := cmd.ErrOrStderr()
	printf(w, "[%s] request=%s chunks=%d finish=%s duration=%s",
		res.Outcome(), res.RequestID, res.Chunks, res.FinishReason, res.Duration.Round(time.Millisecond))
	if res.Usage != nil {
		estimated := ""
		if res.Usage.Estimated {
			estimated = "~"
		}
		printf(w, " tokens=%s%d/%s%d", estimated, res.Usage.InputTokens, estimated, res.Usage.OutputTokens)
	}
	printf(w, "\n")
}

func maskKey(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
