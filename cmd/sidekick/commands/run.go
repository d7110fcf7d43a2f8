package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rajpdus/meeting-sidekick/internal/audio"
	"github.com/rajpdus/meeting-sidekick/internal/config"
	"github.com/rajpdus/meeting-sidekick/internal/export"
	"github.com/rajpdus/meeting-sidekick/internal/grpcclient"
	"github.com/rajpdus/meeting-sidekick/internal/llm"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator"
	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/transcribe"
	"github.com/rajpdus/meeting-sidekick/internal/server"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

var (
	runDevice    string
	runSTT       string
	runInference string
	runAddr      string
	runTitle     string
	runExport    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Record from the input device and serve the control API",
	Long: `Start recording immediately and keep going until interrupted (Ctrl+C).

While recording, transcript segments, insights, summaries and action items are
pushed to WebSocket clients on /ws. The HTTP API can stop and restart recording,
rename the meeting, force a summary or action item pass and export the session.

On exit the final summary, insights and action items are printed.`,
	RunE: runSidekick,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runDevice, "device", "", "input device name substring (overrides AUDIO_DEVICE)")
	f.StringVar(&runSTT, "stt", "", "speech-to-text backend: openai or grpc (overrides STT_BACKEND)")
	f.StringVar(&runInference, "inference", "", "gRPC inference address (overrides INFERENCE_ADDR)")
	f.StringVar(&runAddr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	f.StringVar(&runTitle, "title", "", "meeting title")
	f.StringVar(&runExport, "export", "", "export the session on exit: markdown or json")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags is the last configuration layer; only flags set on the command line apply.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.AudioDevice = runDevice
	}
	if flags.Changed("stt") {
		cfg.STTBackend = runSTT
	}
	if flags.Changed("inference") {
		cfg.InferenceAddr = runInference
	}
	if flags.Changed("addr") {
		cfg.HTTPAddr = runAddr
	}
}

func runSidekick(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if runExport != "" {
		if _, err := export.ParseFormat(runExport); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	completer, err := llm.New(llm.ConfigFrom(cfg))
	if err != nil {
		return err
	}
	rec, closeRec, err := newRecognizer(ctx, cfg, completer)
	if err != nil {
		return err
	}
	defer closeRec()

	opener := audio.PortAudioOpener(audio.DeviceConfig{
		Name:         cfg.AudioDevice,
		SampleRate:   cfg.SampleRate,
		FrameSamples: cfg.FrameSamples,
	})
	mgr := orchestrator.New(cfg, rec, completer, opener)
	if runTitle != "" {
		if err := mgr.SetTitle(runTitle); err != nil {
			return err
		}
	}

	srv := server.New(mgr)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("control server starting", "http", cfg.HTTPAddr, "stt", cfg.STTBackend, "model", cfg.CompletionModel)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	if err := mgr.StartRecording(ctx); err != nil {
		runErr = err
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "Recording... press Ctrl+C to stop.")
		select {
		case <-ctx.Done():
		case runErr = <-serveErr:
			slog.Error("http server error", "error", runErr)
		}
	}
	// Restore default signal handling so a second Ctrl+C exits immediately.
	stop()

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	// Close stops any recording, which runs the final analysis pass.
	if err := mgr.Close(context.Background()); err != nil {
		slog.Error("session close error", "error", err)
	}
	srv.Close()

	out := cmd.OutOrStdout()
	renderReport(out, mgr.Snapshot())
	if runExport != "" {
		path, err := mgr.Export(context.Background(), runExport)
		if err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Fprintf(out, "\nExported to %s\n", path)
	}
	slog.Info("shutdown complete")
	return runErr
}

// newRecognizer builds the configured speech-to-text backend and its cleanup.
func newRecognizer(ctx context.Context, cfg *config.Config, completer *llm.Client) (transcribe.Recognizer, func(), error) {
	if cfg.STTBackend != config.STTGRPC {
		return completer.Recognizer(), func() {}, nil
	}

	client, err := grpcclient.New(grpcclient.ConfigFrom(cfg))
	if err != nil {
		slog.Error("failed to connect to inference server", "addr", cfg.InferenceAddr, "error", err)
		return nil, nil, err
	}
	if err := client.Check(ctx); err != nil {
		// The connection is lazy; windows fail through the breaker until the service is up.
		slog.Warn("inference server not ready", "addr", cfg.InferenceAddr, "error", err)
	}
	return client, func() { _ = client.Close() }, nil
}
