package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rajpdus/meeting-sidekick/internal/config"
)

var (
	// Global flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sidekick",
	Short: "Live meeting transcription with running insights",
	Long: `sidekick - records a meeting, transcribes it in overlapping windows and keeps
a rolling summary, short insights and extracted action items.

Configuration is layered: defaults, then an optional YAML file (--config or
SIDEKICK_CONFIG), then environment variables, then command flags.

Examples:
  # Record from the default input device using OpenAI for everything
  OPENAI_API_KEY=sk-... sidekick run

  # Use a loopback device and a local gRPC speech service, export on exit
  sidekick run --device blackhole --stt grpc --inference localhost:50051 --export markdown`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(os.Stderr, logLevel)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

// loadConfig applies the file and environment layers. Flags are applied by the caller.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		setupLogging(os.Stderr, cfg.LogLevel)
	}
	return cfg, nil
}

func setupLogging(w io.Writer, level string) {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
