package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"shopnav/cmd/client/cmd/event"
	"shopnav/cmd/client/cmd/pack"
	"shopnav/cmd/client/cmd/sync"
	"shopnav/cmd/client/cmd/token"
	"shopnav/cmd/client/cmd/types"
	"shopnav/internal/app/client"
	"shopnav/internal/app/client/config"
	"shopnav/internal/utils/logger"
)

var (
	cfgFile   string
	debug     bool
	serverURL string
	storeID   int64

	app *client.App
)

var rootCmd = &cobra.Command{
	Use:   "shopnav",
	Short: "Shopnav - офлайн-навигация по товарам в магазине",
	Long: `Shopnav хранит локальную копию справочников магазина (зоны, товары,
предполагаемые места товаров) и работает без сети.

Действия покупателя (нашел, не нашел, отсканировал) записываются в локальную
очередь и отправляются на сервер при следующей синхронизации.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: closeApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

// Execute запускает CLI; SIGINT/SIGTERM отменяют контекст команды
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg := config.MustLoad(cfgFile)

	// Переопределяем настройки из флагов командной строки
	if serverURL != "" {
		cfg.ServerAddress = serverURL
	}
	if storeID > 0 {
		cfg.StoreID = storeID
	}

	var err error
	app, err = client.New(cfg, newLogger(cfg))
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}

	cmd.SetContext(context.WithValue(cmd.Context(), types.ClientAppKey, app))
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

// newLogger логи CLI идут в stderr, чтобы не мешать выводу команд
func newLogger(cfg *config.Config) *slog.Logger {
	if debug {
		return logger.NewWithWriter(cfg.Env, os.Stderr)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл (yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный режим")
	rootCmd.PersistentFlags().BoolVar(&types.JSONOutput, "json", false, "вывод в формате JSON")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера (host:port)")
	rootCmd.PersistentFlags().Int64Var(&storeID, "store", 0, "ID магазина")

	rootCmd.AddCommand(token.TokenCmd)
	token.TokenCmd.AddCommand(token.SetCmd)
	token.TokenCmd.AddCommand(token.ClearCmd)
	token.TokenCmd.AddCommand(token.CheckCmd)

	rootCmd.AddCommand(event.EventCmd)
	event.EventCmd.AddCommand(event.FoundCmd)
	event.EventCmd.AddCommand(event.NotFoundCmd)
	event.EventCmd.AddCommand(event.ScanCmd)

	rootCmd.AddCommand(pack.LocateCmd)
	rootCmd.AddCommand(pack.ZonesCmd)

	rootCmd.AddCommand(sync.SyncCmd)
	rootCmd.AddCommand(sync.OutboxCmd)
}
