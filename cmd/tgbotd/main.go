// Command tgbotd runs the chat-relay dispatch core: it loads a
// configuration snapshot, opens the circular log and access list, starts
// the message queue and worker pool, and, when enabled, the webhook
// ingress server, until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/graydnsapconet/tgbot/internal/accesslist"
	"github.com/graydnsapconet/tgbot/internal/circularlog"
	"github.com/graydnsapconet/tgbot/internal/completion"
	"github.com/graydnsapconet/tgbot/internal/config"
	"github.com/graydnsapconet/tgbot/internal/inbound"
	"github.com/graydnsapconet/tgbot/internal/queue"
	"github.com/graydnsapconet/tgbot/internal/types"
	"github.com/graydnsapconet/tgbot/internal/webhook"
	"github.com/graydnsapconet/tgbot/internal/workerpool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tgbotd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "tgbot.yaml", "path to the YAML configuration snapshot")
	dev := flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
	flag.Parse()

	log := newLogger(*dev)
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	clog, err := circularlog.Init(cfg.LogPath, int64(cfg.LogMaxSizeMB)*1024*1024, circularlog.Info)
	if err != nil {
		return fmt.Errorf("open circular log: %w", err)
	}
	defer clog.Close()
	clog.Infof("tgbotd starting, config=%s", *configPath)

	access, err := accesslist.Load(cfg.AccessPath, log)
	if err != nil {
		return fmt.Errorf("load access list: %w", err)
	}

	q := queue.New(cfg.UserRingSize, log)
	defer q.Destroy()

	sndr := &loggingSender{log: log}

	pool := workerpool.New(
		workerpool.Config{
			Workers:       cfg.WorkerCount,
			ReplyDelay:    time.Duration(cfg.ReplyDelaySeconds) * time.Second,
			TypingEnabled: true,
		},
		q,
		newCompletionClientFactory(cfg, log),
		sndr,
		log,
	)
	if err := pool.Start(); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	log.Info("worker pool started", zap.Stringer("state", pool.State()))

	router := inbound.New(cfg, access, q, pool, cfg.BotUsername, cfg.WorkerCount, log)

	var webhookSrv *webhook.Server
	if cfg.WebhookEnabled {
		webhookSrv = webhook.New(webhook.Config{
			Addr:    fmt.Sprintf(":%d", cfg.WebhookPort),
			Secret:  cfg.WebhookSecret,
			Pool:    cfg.WebhookPoolSize,
			Threads: cfg.WebhookThreads,
		}, router, log)
		if err := webhookSrv.Start(); err != nil {
			return fmt.Errorf("start webhook server: %w", err)
		}
		clog.Infof("webhook ingress listening on port %d", cfg.WebhookPort)
		log.Info("webhook server started", zap.Stringer("state", webhookSrv.State()))
	} else {
		clog.Infof("webhook ingress disabled; long-poll ingress is an external collaborator")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	clog.Infof("tgbotd shutting down")
	log.Info("shutdown signal received, draining")

	if webhookSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := webhookSrv.Stop(shutdownCtx); err != nil {
			log.Warn("webhook server shutdown error", zap.Error(err))
		}
		log.Info("webhook server stopped", zap.Stringer("state", webhookSrv.State()))
	}
	if err := pool.Stop(); err != nil {
		log.Warn("worker pool shutdown error", zap.Error(err))
	}
	log.Info("worker pool stopped", zap.Stringer("state", pool.State()))

	clog.Infof("tgbotd stopped cleanly")
	return nil
}

// newLogger builds the process logger. Logger init failure is non-fatal:
// it falls through to a minimal stderr-only logger instead of aborting
// startup.
func newLogger(dev bool) *zap.Logger {
	build := zap.NewProduction
	if dev {
		build = zap.NewDevelopment
	}
	log, err := build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tgbotd: logger init failed, falling back to stderr-only:", err)
		return stderrOnlyLogger()
	}
	return log
}

// stderrOnlyLogger builds a bare zapcore.Core writing JSON lines to
// os.Stderr, used only when the configured production/development logger
// fails to build.
func stderrOnlyLogger() *zap.Logger {
	encoder := zap.NewProductionEncoderConfig()
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoder), zapcore.AddSync(os.Stderr), zap.DebugLevel)
	return zap.New(core)
}

func newCompletionClientFactory(cfg *config.Config, log *zap.Logger) workerpool.NewCompletionClient {
	completionCfg := completion.Config{
		Endpoint:     cfg.CompletionEndpoint,
		Model:        cfg.CompletionModel,
		MaxTokens:    cfg.CompletionMaxTokens,
		SystemPrompt: cfg.CompletionSystemPrompt,
	}
	return func() completion.Client {
		return completion.NewHTTPClient(completionCfg, &http.Client{Timeout: 30 * time.Second}, nil, log)
	}
}

// loggingSender stands in for the remote messaging platform's outbound
// client, an external collaborator this repo only defines the
// sender.Sender contract for. It lets tgbotd start and drain the dispatch
// core end to end; wiring a real platform client means swapping this out
// for a concrete sender.Sender.
type loggingSender struct {
	log *zap.Logger
}

func (s *loggingSender) SendMessage(_ context.Context, chat types.ChatID, text string) error {
	s.log.Info("outbound message", zap.Int64("chat_id", int64(chat)), zap.String("text", text))
	return nil
}

func (s *loggingSender) SendTyping(_ context.Context, chat types.ChatID) error {
	s.log.Debug("outbound typing ack", zap.Int64("chat_id", int64(chat)))
	return nil
}
