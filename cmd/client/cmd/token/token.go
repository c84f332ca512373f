package token

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"shopnav/cmd/client/cmd/types"
)

var TokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Управление токеном доступа",
	Long: `Токен выдается сервером и отправляется с каждым запросом POST /events.
Без токена события копятся в локальной очереди.`,
}

var SetCmd = &cobra.Command{
	Use:   "set [token]",
	Short: "Сохранить токен",
	Long: `Сохраняет токен доступа в файл конфигурации клиента.
Если токен не передан аргументом, он запрашивается без отображения на экране.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			token, err = readToken()
			if err != nil {
				return err
			}
		}

		if err := app.SaveToken(token); err != nil {
			return err
		}
		color.Green("✓ Токен сохранен")
		return nil
	},
}

func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("ошибка чтения токена: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Print("Токен: ")
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("ошибка чтения токена: %w", err)
	}
	return string(raw), nil
}

var ClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Удалить сохраненный токен",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}
		if err := app.ClearToken(); err != nil {
			return err
		}
		color.Green("✓ Токен удален")
		return nil
	},
}

var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Проверить соединение с сервером",
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := types.App(cmd)
		if err != nil {
			return err
		}

		if _, err := app.GetToken(); err != nil {
			color.Yellow("⚠️  %v", err)
		}

		if err := app.CheckConnection(cmd.Context()); err != nil {
			color.Red("❌ Сервер недоступен: %v", err)
			return nil
		}
		color.Green("✓ Соединение с сервером установлено")
		return nil
	},
}
