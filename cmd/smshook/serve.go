package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	smshook "github.com/goliatone/go-smshook"
	"github.com/goliatone/go-smshook/adapters/gocommand"
	smscommand "github.com/goliatone/go-smshook/command"
	"github.com/goliatone/go-smshook/core"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		skipMigrations bool
		replyText      string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inbound SMS webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts.configPath, cmd.ErrOrStderr(), !skipMigrations)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a, replyText)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	cmd.Flags().StringVar(&replyText, "reply", "", "auto-reply text sent to each sender (needs provider credentials)")
	return cmd
}

func serve(ctx context.Context, a *app, replyText string) error {
	logger := a.runtime.Service().Logger("server")

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	unsubscribe, err := gocommand.RegisterMessageHandler(adapter, newMessageLogger(a.runtime, logger, replyText))
	if err != nil {
		return err
	}
	defer unsubscribe()
	unregister, err := gocommand.RegisterMaintenance(adapter, a.runtime.Commands().Purge, a.runtime.Queries().PendingGroups)
	if err != nil {
		return err
	}
	defer unregister()
	if err := adapter.Initialize(); err != nil {
		return err
	}

	scheduler, err := schedulePurge(a.config.Reassembly.PurgeSchedule, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	server := &http.Server{
		Addr:              a.config.HTTP.Address,
		Handler:           newRouter(a.config, a.runtime.HTTPHandler(gocommand.NewDispatchHandler())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "address", server.Addr, "path", a.config.HTTP.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newRouter(cfg core.Config, webhook http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	// The pipeline owns method checks and answers 405 itself.
	router.Handle(cfg.HTTP.Path, webhook)
	return router
}

// schedulePurge runs the purge command on the configured cron spec through
// the go-command dispatcher.
func schedulePurge(spec string, logger glog.Logger) (*cron.Cron, error) {
	scheduler := cron.New()
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return scheduler, nil
	}
	_, err := scheduler.AddFunc(spec, func() {
		ctx := context.Background()
		if err := gocommand.Dispatch(ctx, smscommand.PurgeMessage{}); err != nil {
			logger.Error("scheduled purge failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("purge schedule %q: %w", spec, err)
	}
	return scheduler, nil
}

// messageLogger is the default application handler: it logs each delivered
// message and optionally replies to the sender.
type messageLogger struct {
	runtime   *smshook.Runtime
	logger    glog.Logger
	replyText string
}

func newMessageLogger(runtime *smshook.Runtime, logger glog.Logger, replyText string) *messageLogger {
	return &messageLogger{runtime: runtime, logger: glog.Ensure(logger), replyText: strings.TrimSpace(replyText)}
}

func (h *messageLogger) HandleMessage(ctx context.Context, msg core.InboundMessage) error {
	fields := []any{
		"message_id", msg.MessageID,
		"from", msg.Sender,
		"to", msg.Recipient,
		"type", string(msg.Kind),
	}
	if msg.Reassembly != nil {
		fields = append(fields, "concat_ref", msg.Reassembly.Ref, "concat_parts", msg.Reassembly.Parts)
	}
	if msg.Kind.Textual() {
		fields = append(fields, "text", msg.Text())
	}
	h.logger.WithContext(ctx).Info("message received", fields...)

	if h.replyText == "" || h.runtime == nil {
		return nil
	}
	if _, err := h.runtime.Reply(ctx, msg, h.replyText); err != nil {
		// Reply failures do not fail delivery.
		h.logger.WithContext(ctx).Warn("auto-reply failed", "message_id", msg.MessageID, "error", err)
	}
	return nil
}

var _ core.MessageHandler = (*messageLogger)(nil)
