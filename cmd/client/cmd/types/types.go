package types

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shopnav/internal/app/client"
)

type contextKey string

// ClientAppKey ключ, под которым корневая команда кладет *client.App в контекст
const ClientAppKey contextKey = "app"

// JSONOutput выставляется флагом --json
var JSONOutput bool

// App достает приложение из контекста команды
func App(cmd *cobra.Command) (*client.App, error) {
	app, ok := cmd.Context().Value(ClientAppKey).(*client.App)
	if !ok || app == nil {
		return nil, fmt.Errorf("приложение не инициализировано")
	}
	return app, nil
}

// PrintJSON печатает значение в stdout с отступами
func PrintJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
