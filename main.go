package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karmen87/Crypto-Alarm/internal/repo"
	"github.com/karmen87/Crypto-Alarm/internal/schedule"
	"github.com/karmen87/Crypto-Alarm/internal/server"
	binancefeed "github.com/karmen87/Crypto-Alarm/internal/service/feed/binance"
	"github.com/karmen87/Crypto-Alarm/internal/service/monitor"
	"github.com/karmen87/Crypto-Alarm/internal/service/notification"
	"github.com/karmen87/Crypto-Alarm/internal/service/notification/telegram"
	"github.com/karmen87/Crypto-Alarm/ioc"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func initViper() {

	// --config=./config/xxx.yaml
	file := pflag.String("config", "./config/config.dev.yaml", "specify config file")
	pflag.Parse()

	viper.SetConfigFile(*file)
	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %s \n", err))
	}
}

func initStore() monitor.Persistence {
	driver := viper.GetString("storage.driver")
	switch driver {
	case "file":
		path := viper.GetString("storage.file.path")
		if path == "" {
			path = "data/crypto_alarm.json"
		}
		return repo.NewFileStore(path)
	default:
		db := ioc.InitDB()
		if err := repo.InitTables(db); err != nil {
			panic(err)
		}
		return repo.NewSnapshotRepo(db)
	}
}

func main() {
	initViper()

	store := initStore()
	feedSvc := binancefeed.NewService(ioc.InitBinanceCli())

	hub := server.NewHub()
	sinks := notification.Fanout{hub}
	if bot, chatID := ioc.InitTelegramBot(); bot != nil {
		sinks = append(sinks, telegram.NewService(bot, chatID))
	}
	if url := viper.GetString("notification.webhook.url"); url != "" {
		sinks = append(sinks, notification.NewWebhookSink(url))
	}

	m := monitor.NewMonitor(feedSvc, store, monitor.WithSink(sinks))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Restore(ctx); err != nil {
		slog.Error("failed to restore state, starting empty", "error", err)
	}

	interval := viper.GetDuration("monitor.interval")
	if interval <= 0 {
		interval = time.Second * 10
	}
	runner := schedule.NewRunner(monitor.NewPollTask(m), interval)
	go runner.Run(ctx)

	addr := viper.GetString("server.addr")
	if addr == "" {
		addr = ":5000"
	}
	srv := server.New(m, hub, addr)
	go func() {
		if err := srv.Start(ctx); err != nil {
			slog.Error("server stopped", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second*5)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
}
