package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"shopnav/cmd/client/cmd/types"
	"shopnav/internal/app/client"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	syncStatus  bool
	watch       bool
	quarantined bool
	limit       int
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Синхронизация с сервером",
	Long: `Загружает изменения справочников магазина, применяет их к локальной реплике
и отправляет накопленные события. При временных ошибках сети синхронизация
повторяется с нарастающей задержкой.

С флагом --watch синхронизация выполняется по расписанию до Ctrl+C.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		if syncStatus {
			return showSyncStatus(cmd.Context(), app)
		}
		if watch {
			fmt.Println("Синхронизация по расписанию, Ctrl+C для остановки")
			return app.Run(cmd.Context())
		}
		return runSync(cmd.Context(), app)
	},
}

func runSync(ctx context.Context, app *client.App) error {
	stats, err := app.Sync(ctx)
	if errors.Is(err, client.ErrSyncInProgress) {
		color.Yellow("Синхронизация уже выполняется")
		return nil
	}
	if errors.Is(err, client.ErrUnauthorized) {
		return fmt.Errorf("%w. Выполните: shopnav token set", err)
	}
	if errors.Is(err, client.ErrRefused) {
		return fmt.Errorf("%w. События остались в очереди, проверьте адрес сервера", err)
	}
	if err != nil {
		return fmt.Errorf("ошибка синхронизации: %w", err)
	}

	if types.JSONOutput {
		return types.PrintJSON(stats)
	}

	color.Green("✅ Синхронизация завершена")
	fmt.Printf("Версия пакета: %s\n", stats.Version)
	fmt.Printf("Время выполнения: %v (попыток: %d)\n",
		(time.Duration(stats.DurationMS) * time.Millisecond).Round(time.Millisecond), stats.Attempts)
	printTables(stats)
	fmt.Printf("Отправлено событий: %d\n", stats.Accepted)
	if stats.Rejected > 0 {
		color.Yellow("Отклонено сервером: %d (shopnav outbox --quarantined)", stats.Rejected)
	}
	return nil
}

func printTables(stats *client.SyncStats) {
	tables := make([]string, 0, len(stats.Tables))
	for name := range stats.Tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	for _, name := range tables {
		c := stats.Tables[name]
		if c.Upserts == 0 && c.Deletes == 0 {
			continue
		}
		fmt.Printf("  %-18s +%d -%d\n", name, c.Upserts, c.Deletes)
	}
}

func showSyncStatus(ctx context.Context, app *client.App) error {
	st, counts, version, err := app.Status(ctx)
	if err != nil {
		return err
	}

	if types.JSONOutput {
		return types.PrintJSON(struct {
			client.SyncStatus
			Outbox  client.OutboxCounts `json:"outbox"`
			Version string              `json:"version"`
		}{st, counts, version})
	}

	fmt.Println("=== Статус синхронизации ===")
	switch st.State {
	case client.StateOK:
		color.Green("Состояние: %s", st.State)
	case client.StateFailed:
		color.Red("Состояние: %s", st.State)
	default:
		fmt.Printf("Состояние: %s\n", st.State)
	}

	if version == "" {
		fmt.Println("Версия пакета: нет (реплика пуста)")
	} else {
		fmt.Printf("Версия пакета: %s\n", version)
	}
	if !st.LastAttempt.IsZero() {
		fmt.Printf("Последняя попытка: %s\n", st.LastAttempt.Local().Format(timeLayout))
	}
	if !st.LastSuccess.IsZero() {
		fmt.Printf("Последняя успешная: %s\n", st.LastSuccess.Local().Format(timeLayout))
	}
	if st.LastError != "" {
		color.Red("Ошибка: %s", st.LastError)
	}

	fmt.Printf("\nОчередь событий:\n")
	fmt.Printf("  Ожидают отправки: %d\n", counts.Pending)
	fmt.Printf("  Отправлены: %d\n", counts.Sent)
	fmt.Printf("  В карантине: %d\n", counts.Quarantined)
	return nil
}

var OutboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "События в локальной очереди",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		var entries []client.OutboxEntry
		if quarantined {
			entries, err = app.Quarantined(cmd.Context(), limit)
		} else {
			entries, err = app.Pending(cmd.Context(), limit)
		}
		if err != nil {
			return err
		}

		if types.JSONOutput {
			return types.PrintJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("Очередь пуста")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-12s %s  %s\n",
				e.CreatedAt.Local().Format(timeLayout), e.Wire.Type, e.Wire.ID, string(e.Wire.Payload))
			if e.RejectReason != "" {
				color.Red("    причина: %s", e.RejectReason)
			}
		}
		return nil
	},
}

func init() {
	SyncCmd.Flags().BoolVar(&syncStatus, "status", false, "показать статус последней синхронизации")
	SyncCmd.Flags().BoolVarP(&watch, "watch", "w", false, "синхронизировать по расписанию")

	OutboxCmd.Flags().BoolVar(&quarantined, "quarantined", false, "показать отклоненные сервером события")
	OutboxCmd.Flags().IntVarP(&limit, "limit", "n", 50, "сколько событий показать")
}
