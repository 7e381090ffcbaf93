package main // notification worker: queue consumer and reminder scanner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/community-events/internal/config"
	"github.com/iliyamo/community-events/internal/database"
	"github.com/iliyamo/community-events/internal/logging"
	"github.com/iliyamo/community-events/internal/queue"
	"github.com/iliyamo/community-events/internal/repository"
	"github.com/iliyamo/community-events/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	pub := queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	defer pub.Close()

	notifier := queue.NewFileNotifier(cfg.AMQP.LogDir, log)
	consumer := queue.NewConsumer(cfg.AMQP, notifier, log)
	reminders := service.NewReminders(repository.NewStore(db, dialect), pub, cfg.Reminder, log)

	log.Info("worker started",
		zap.String("queue", cfg.AMQP.Queue),
		zap.Strings("bindings", queue.Bindings),
		zap.String("notifications", notifier.Path()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return reminders.Run(gctx) })
	err = g.Wait()
	log.Info("worker stopped")
	return err
}
