package pack

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"shopnav/cmd/client/cmd/types"
	"shopnav/internal/app/client"
)

var LocateCmd = &cobra.Command{
	Use:   "locate <product-id | ean>",
	Short: "Где искать товар",
	Long: `Показывает предполагаемую зону товара в выбранном магазине по локальной реплике.
Аргумент длиной 8-14 символов сначала ищется как штрихкод.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		productID, err := resolveProduct(cmd, args[0])
		if err != nil {
			return err
		}

		loc, err := app.Location(ctx, productID)
		if errors.Is(err, client.ErrNotFound) {
			color.Yellow("Для товара %d в этом магазине нет данных", productID)
			return nil
		}
		if err != nil {
			return err
		}

		if types.JSONOutput {
			return types.PrintJSON(loc)
		}

		if loc.ZoneID == nil {
			color.Yellow("Товар %d: зона неизвестна", productID)
			return nil
		}

		zoneName := strconv.FormatInt(*loc.ZoneID, 10)
		if zones, err := app.Zones(ctx); err == nil {
			for _, z := range zones {
				if z.ID == *loc.ZoneID {
					zoneName = fmt.Sprintf("%s (ряд %s)", z.Name, z.Aisle)
				}
			}
		}

		fmt.Printf("Товар %d: %s\n", productID, zoneName)
		if loc.Confidence != nil {
			fmt.Printf("Уверенность: %.2f\n", *loc.Confidence)
		}
		return nil
	},
}

// resolveProduct сначала ищет штрихкод в реплике, затем трактует аргумент как ID товара
func resolveProduct(cmd *cobra.Command, arg string) (int64, error) {
	app, err := types.App(cmd)
	if err != nil {
		return 0, err
	}

	if n := len(arg); n >= 8 && n <= 14 {
		p, err := app.ProductByEAN(cmd.Context(), arg)
		if err == nil {
			return p.ID, nil
		}
		if !errors.Is(err, client.ErrNotFound) {
			return 0, err
		}
	}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("товар %q не найден", arg)
	}
	return id, nil
}

var ZonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Зоны выбранного магазина",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		zones, err := app.Zones(cmd.Context())
		if err != nil {
			return err
		}
		if types.JSONOutput {
			return types.PrintJSON(zones)
		}
		if len(zones) == 0 {
			fmt.Println("Зон нет. Выполните: shopnav sync")
			return nil
		}
		for _, z := range zones {
			fmt.Printf("%6d  %-24s %s\n", z.ID, z.Name, z.Aisle)
		}
		return nil
	},
}
