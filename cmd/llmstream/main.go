// Package main provides a command-line interface for streaming chat
// completions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aiarch/llmstream/config"
	"github.com/aiarch/llmstream/llm"
	"github.com/aiarch/llmstream/utils"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath   string
	provider     string
	model        string
	baseURL      string
	apiKey       string
	systemPrompt string
	logLevel     string
	metricsAddr  string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "llmstream",
		Short:         "Stream chat completions from OpenAI-compatible APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `llmstream sends a prompt to an OpenAI-compatible chat completions API and
prints the answer as it streams in.

Configuration comes from a YAML file (--config), then LLM_* environment
variables, then flags. An unset LLM_API_KEY falls back to <PROVIDER>_API_KEY.`,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file")
	pf.StringVar(&flags.provider, "provider", "", "provider preset (see `llmstream providers`)")
	pf.StringVar(&flags.model, "model", "", "model identifier")
	pf.StringVar(&flags.baseURL, "base-url", "", "API base URL; /chat/completions is appended")
	pf.StringVar(&flags.apiKey, "api-key", "", "API key (prefer the environment)")
	pf.StringVar(&flags.systemPrompt, "system-prompt", "", "system message sent before the prompt")
	pf.StringVar(&flags.logLevel, "log-level", "", "off, error, warn, info or debug")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	root.AddCommand(
		newStreamCmd(flags),
		newGenerateCmd(flags),
		newConfigCmd(flags),
		newProvidersCmd(),
	)
	return root
}

// loadConfig layers file, environment and changed flags.
func (f *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadConfigFile(f.configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	var opts []config.ConfigOption
	if changed("provider") {
		opts = append(opts, config.SetProvider(f.provider))
	}
	if changed("model") {
		opts = append(opts, config.SetModel(f.model))
	}
	if changed("base-url") {
		opts = append(opts, config.SetBaseURL(f.baseURL))
	}
	if changed("api-key") {
		opts = append(opts, config.SetAPIKey(f.apiKey))
	}
	if changed("system-prompt") {
		opts = append(opts, config.SetSystemPrompt(f.systemPrompt))
	}
	if changed("log-level") {
		level, err := utils.ParseLogLevel(f.logLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, config.SetLogLevel(level))
	}
	config.ApplyOptions(cfg, opts...)

	if cfg.Logger == nil {
		cfg.Logger = utils.NewLoggerWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)
	}
	return cfg, nil
}

// newClient builds the client and, with --metrics-addr, starts serving
// metrics. The returned stop function shuts the metrics server down.
func (f *globalFlags) newClient(cmd *cobra.Command) (*llm.Client, func(), error) {
	cfg, err := f.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	var opts []llm.ClientOption
	stop := func() {}
	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, llm.WithMetrics(llm.NewMetrics(reg)))
		stop = serveMetrics(f.metricsAddr, reg, cfg.Logger)
	}

	client, err := llm.NewClient(cfg, opts...)
	if err != nil {
		stop()
		return nil, nil, err
	}
	return client, stop, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger utils.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("Serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
