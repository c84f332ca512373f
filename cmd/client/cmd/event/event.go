package event

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"shopnav/cmd/client/cmd/types"
)

var EventCmd = &cobra.Command{
	Use:   "event",
	Short: "Записать действие покупателя",
	Long: `События записываются только в локальную очередь и не требуют сети.
На сервер они уходят при следующей синхронизации (shopnav sync).`,
}

var FoundCmd = &cobra.Command{
	Use:   "found <product-id> <zone-id>",
	Short: "Товар найден в зоне",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		productID, err := parseID("product-id", args[0])
		if err != nil {
			return err
		}
		zoneID, err := parseID("zone-id", args[1])
		if err != nil {
			return err
		}

		id, err := app.RecordFound(cmd.Context(), productID, zoneID)
		if err != nil {
			return err
		}
		return printQueued(id)
	},
}

var NotFoundCmd = &cobra.Command{
	Use:   "not-found <product-id>",
	Short: "Товар не найден в предложенной зоне",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		productID, err := parseID("product-id", args[0])
		if err != nil {
			return err
		}

		id, err := app.RecordNotFound(cmd.Context(), productID)
		if err != nil {
			return err
		}
		return printQueued(id)
	},
}

var ScanCmd = &cobra.Command{
	Use:   "scan <ean> <zone-id>",
	Short: "Штрихкод отсканирован в зоне",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		zoneID, err := parseID("zone-id", args[1])
		if err != nil {
			return err
		}

		id, err := app.RecordScan(cmd.Context(), args[0], zoneID)
		if err != nil {
			return err
		}
		return printQueued(id)
	},
}

func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s должен быть положительным числом: %q", name, s)
	}
	return id, nil
}

func printQueued(id string) error {
	if types.JSONOutput {
		return types.PrintJSON(map[string]string{"id": id})
	}
	color.Green("✓ Событие добавлено в очередь: %s", id)
	return nil
}
