package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/docexplain/docexplain/internal/config"
	"github.com/docexplain/docexplain/internal/llm/openai"
	"github.com/docexplain/docexplain/internal/logging"
	"github.com/docexplain/docexplain/internal/markup"
	"github.com/docexplain/docexplain/internal/outline"
)

// version is the CLI build version.
const version = "0.1.0"

// options holds all CLI flags.
type options struct {
	// ConfigPath overrides the provider config location.
	ConfigPath string
	// Model overrides the configured default model.
	Model string
	// LogFile writes structured logs to a file path.
	LogFile string
	// Debug lowers the log level and logs to stderr in one-shot mode.
	Debug bool
	// Version prints the CLI version.
	Version bool
	// OutputFormat controls ask output encoding.
	OutputFormat string
	// File is the document whose outline accompanies an ask.
	File string
	// Ping makes doctor issue a live completion request.
	Ping bool
}

// runtime bundles the resolved configuration shared by every command.
type runtime struct {
	// cfg is the loaded provider configuration.
	cfg *config.ProviderConfig
	// model is the resolved model identifier.
	model string
	// client talks to the chat-completion endpoint.
	client *openai.Client
	// logger receives structured logs.
	logger *zap.Logger
}

// main wires Cobra and executes the CLI.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand(&options{}).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree around opts.
func newRootCommand(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "explain",
		Short:        "Explain highlighted passages of a document with a streaming LLM answer",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			return cmd.Help()
		},
	}

	applyFlags(rootCmd.PersistentFlags(), opts)

	rootCmd.AddCommand(viewCommand(opts))
	rootCmd.AddCommand(askCommand(opts))
	rootCmd.AddCommand(outlineCommand())
	rootCmd.AddCommand(doctorCommand(opts))
	return rootCmd
}

// applyFlags defines the global flags.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVar(&opts.ConfigPath, "config", "", "Provider config file (default ~/.docexplain/config.json)")
	flags.StringVar(&opts.Model, "model", "", "Model for the session")
	flags.StringVar(&opts.LogFile, "log-file", "", "Write structured logs to a file")
	flags.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	flags.BoolVarP(&opts.Version, "version", "v", false, "Output the version number")
}

// viewCommand opens the interactive reader.
func viewCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "view <file>",
		Short: "Read a document and explain highlighted passages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(opts, true)
			if err != nil {
				return err
			}
			defer func() { _ = rt.logger.Sync() }()
			return runViewTUI(cmd.Context(), rt, args[0])
		},
	}
}

// askCommand explains one passage and prints the answer.
func askCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [text]",
		Short: "Explain a passage given as arguments or on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputFormat(opts.OutputFormat); err != nil {
				return err
			}
			rt, err := loadRuntime(opts, false)
			if err != nil {
				return err
			}
			defer func() { _ = rt.logger.Sync() }()
			selection, err := readSelection(args, cmd.InOrStdin(), stdinIsTerminal())
			if err != nil {
				return err
			}
			return runAsk(cmd.Context(), rt, opts, selection, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.OutputFormat, "output-format", markup.FormatPlain, "Output format (text|markdown|html|stream-json)")
	cmd.Flags().StringVar(&opts.File, "file", "", "Document the passage comes from; its outline is sent with the prompt")
	return cmd
}

// outlineCommand prints the outline a document contributes to prompts.
func outlineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "outline <file>",
		Short: "Print the top-level outline of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			titles, err := outline.FileProvider{Path: args[0]}.Outline(cmd.Context())
			if err != nil {
				return err
			}
			for _, title := range titles {
				fmt.Fprintln(cmd.OutOrStdout(), title)
			}
			return nil
		},
	}
}

// doctorCommand validates provider configuration and permissions.
func doctorCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check docexplain configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.ConfigPath
			if path == "" {
				path = mustProviderPath()
			}
			if info, err := os.Stat(path); err == nil {
				mode := info.Mode().Perm()
				if mode&0o077 != 0 {
					return fmt.Errorf("provider config permissions too open: %s", mode)
				}
			}
			rt, err := loadRuntime(opts, false)
			if err != nil {
				return err
			}
			defer func() { _ = rt.logger.Sync() }()
			fmt.Fprintf(cmd.OutOrStdout(), "OK: provider config %s (model %s)\n", path, rt.model)
			if !opts.Ping {
				return nil
			}
			return pingProvider(cmd.Context(), rt, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.Ping, "ping", false, "Send a short completion request to the provider")
	return cmd
}

// loadRuntime loads config and builds the client and logger.
func loadRuntime(opts *options, interactive bool) (*runtime, error) {
	cfg, err := config.LoadProviderConfig(opts.ConfigPath)
	if err != nil {
		if errors.Is(err, config.ErrProviderConfigMissing) {
			return nil, fmt.Errorf("provider config missing; create %s or set DOCEXPLAIN_API_BASE_URL and DOCEXPLAIN_DEFAULT_MODEL", mustProviderPath())
		}
		return nil, fmt.Errorf("load provider config: %w", err)
	}

	logger, err := logging.New(loggerConfig(cfg, opts, interactive))
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:    cfg,
		model:  config.ResolveModel(cfg, opts.Model),
		client: openai.NewClient(cfg.APIBaseURL, cfg.APIKey, cfg.Timeout(), openai.WithHeaders(cfg.Headers)),
		logger: logger,
	}, nil
}

// loggerConfig picks a log destination. The TUI owns the terminal, so it only
// ever logs to a file.
func loggerConfig(cfg *config.ProviderConfig, opts *options, interactive bool) logging.Config {
	level := cfg.LogLevel
	if opts.Debug {
		level = "debug"
	}
	path := opts.LogFile
	if path == "" {
		path = cfg.LogFile
	}
	switch {
	case path != "":
		return logging.FileConfig(level, path)
	case opts.Debug && !interactive:
		return logging.StderrConfig(level)
	default:
		return logging.Config{Level: level}
	}
}

// pingProvider issues a minimal non-streaming completion.
func pingProvider(ctx context.Context, rt *runtime, out io.Writer) error {
	resp, err := rt.client.ChatCompletions(ctx, &openai.ChatRequest{
		Model:    rt.model,
		Messages: []openai.Message{{Role: "user", Content: "Reply with the single word: pong"}},
	})
	if err != nil {
		return fmt.Errorf("ping provider: %w", err)
	}
	reply := ""
	if len(resp.Choices) > 0 {
		reply = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	fmt.Fprintf(out, "OK: %s answered %q\n", resp.Model, reply)
	return nil
}

// mustProviderPath returns the default config path or a fallback placeholder.
func mustProviderPath() string {
	path, err := config.ProviderConfigPath()
	if err != nil {
		return "~/.docexplain/config.json"
	}
	return path
}
