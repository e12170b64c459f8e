// Command vai-examiner serves spoken IELTS speaking exams over WebSocket.
//
// Usage:
//
//	vai-examiner [--env-file .env] [serve]
//	vai-examiner models
//
// Configuration is read from EXAMINER_* environment variables, optionally
// seeded from a dotenv file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-examiner/internal/dotenv"
	"github.com/vango-go/vai-examiner/pkg/archive"
	"github.com/vango-go/vai-examiner/pkg/core/providers/gemini"
	"github.com/vango-go/vai-examiner/pkg/core/stage"
	"github.com/vango-go/vai-examiner/pkg/core/voice/stt"
	"github.com/vango-go/vai-examiner/pkg/gateway/config"
	"github.com/vango-go/vai-examiner/pkg/gateway/handlers"
	gatewayserver "github.com/vango-go/vai-examiner/pkg/gateway/server"
)

type examinerDeps struct {
	loadConfig    func() (config.Config, error)
	buildBackends func(context.Context, config.Config, *slog.Logger) (gatewayserver.Deps, func(), error)
	newGateway    func(config.Config, *slog.Logger, gatewayserver.Deps) *gatewayserver.Server
	listModels    func(context.Context, config.Config) ([]gemini.ModelInfo, error)
	signalNotify  func(chan<- os.Signal, ...os.Signal)
	signalStop    func(chan<- os.Signal)
}

func defaultExaminerDeps() examinerDeps {
	return examinerDeps{
		loadConfig:    config.LoadFromEnv,
		buildBackends: buildBackends,
		newGateway:    gatewayserver.New,
		listModels: func(ctx context.Context, cfg config.Config) ([]gemini.ModelInfo, error) {
			return gemini.ListModels(ctx, geminiConfig(cfg, gatewayserver.NewUpstreamHTTPClient(cfg)))
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func geminiConfig(cfg config.Config, client *http.Client) gemini.Config {
	return gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		HTTPClient: client,
	}
}

// buildBackends connects everything a session talks to. The returned
// cleanup releases whatever was opened.
func buildBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	profile, err := stage.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return gatewayserver.Deps{}, cleanup, fmt.Errorf("load exam profile: %w", err)
	}

	client := gatewayserver.NewUpstreamHTTPClient(cfg)
	engine := stt.NewOpenAIEngine(stt.OpenAIConfig{
		APIKey:             cfg.STTAPIKey,
		BaseURL:            cfg.STTBaseURL,
		Model:              cfg.STTModel,
		ForwardDecodeHints: cfg.STTForwardHints,
		MaxRetries:         cfg.STTMaxRetries,
		HTTPClient:         client,
	})
	deps := gatewayserver.Deps{
		Transcriber: stt.NewTranscriber(engine),
		Profile:     profile,
		Probes:      map[string]handlers.Probe{},
	}

	if cfg.BackendConfigured() {
		gcfg := geminiConfig(cfg, client)
		gen, err := gemini.New(ctx, gcfg)
		if err != nil {
			return gatewayserver.Deps{}, cleanup, fmt.Errorf("gemini client: %w", err)
		}
		deps.Generator = gen
		deps.Catalog = func(ctx context.Context) ([]gemini.ModelInfo, error) {
			return gemini.ListModels(ctx, gcfg)
		}
	} else {
		logger.Warn("no gemini api key configured; sessions will report a backend error")
	}

	if cfg.DatabaseURL != "" {
		store, err := archive.OpenPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return gatewayserver.Deps{}, cleanup, err
		}
		closers = append(closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return gatewayserver.Deps{}, cleanup, err
		}
		deps.Transcripts = store
		deps.Probes["postgres"] = store.Ping
	}

	if cfg.S3Endpoint != "" {
		objects, err := archive.NewObjectStore(archive.ObjectConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return gatewayserver.Deps{}, cleanup, err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return gatewayserver.Deps{}, cleanup, err
		}
		deps.Audio = objects
		deps.Probes["object_store"] = objects.Ping
	}

	return deps, cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runServe(ctx context.Context, stderr io.Writer, deps examinerDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.buildBackends == nil || deps.newGateway == nil {
		return errors.New("missing gateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(stderr, cfg.LogLevel)

	backends, cleanup, err := deps.buildBackends(ctx, cfg, logger)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return fmt.Errorf("init backends: %w", err)
	}

	gw := deps.newGateway(cfg, logger, backends)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting examiner",
		"addr", cfg.Addr,
		"models", cfg.GeminiModels,
		"backend_configured", cfg.BackendConfigured(),
		"archive", backends.Transcripts != nil,
		"audio_archive", backends.Audio != nil,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()
	warned := gw.WarnSessionsDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitSessions(waitCtx) {
		canceled := gw.CancelSessions()
		logger.Warn("sessions canceled after grace period", "warned", warned, "canceled", canceled)
		waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ArchiveTimeout)
		defer waitCancel()
		gw.WaitSessions(waitCtx)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("examiner stopped")
	return nil
}

func runModels(ctx context.Context, stdout io.Writer, deps examinerDeps) error {
	if deps.loadConfig == nil || deps.listModels == nil {
		return errors.New("missing models dependency")
	}
	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.BackendConfigured() {
		return errors.New("no gemini api key configured")
	}
	models, err := deps.listModels(ctx, cfg)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	candidates := make(map[string]int, len(cfg.GeminiModels))
	for i, m := range cfg.GeminiModels {
		candidates[m] = i + 1
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tROTATION\tGENERATE\tINPUT\tOUTPUT")
	for _, m := range models {
		pos := "-"
		if n, ok := candidates[m.Name]; ok {
			pos = fmt.Sprint(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%d\n", m.Name, pos, m.SupportsGenerate(), m.InputTokenLimit, m.OutputTokenLimit)
	}
	return tw.Flush()
}

func newRootCmd(ctx context.Context, stdout, stderr io.Writer, deps examinerDeps) *cobra.Command {
	var envFile string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve exam sessions over WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ctx, stderr, deps)
		},
	}
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List Gemini models visible to the configured key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(ctx, stdout, deps)
		},
	}

	root := &cobra.Command{
		Use:           "vai-examiner",
		Short:         "Spoken IELTS speaking exam server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return dotenv.LoadFile(envFile)
		},
		RunE: serveCmd.RunE,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.AddCommand(serveCmd, modelsCmd)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps examinerDeps) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	root := newRootCmd(ctx, stdout, stderr, deps)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "vai-examiner: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultExaminerDeps()))
}
