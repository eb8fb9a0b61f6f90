package cli

import (
	"context"
	"fmt"
	"os"
)

// TokenEnv переменная окружения с bearer токеном
const TokenEnv = "PITLANE_TOKEN"

// runLogin сохраняет токен. Источники по приоритету: аргумент,
// переменная окружения PITLANE_TOKEN, скрытый ввод.
func (c *Cli) runLogin(ctx context.Context, args []string) error {
	token := ""
	switch {
	case len(args) > 0:
		token = args[0]
	case os.Getenv(TokenEnv) != "":
		token = os.Getenv(TokenEnv)
	default:
		var err error
		token, err = c.io.ReadPassword("Bearer token: ")
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
	}

	if err := c.session.Login(ctx, token); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	c.io.Println("✓ Token saved")
	return nil
}

func (c *Cli) runLogout(ctx context.Context, _ []string) error {
	if err := c.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	c.io.Println("✓ Logged out")
	c.io.Println("Queued writes are kept and will be sent after the next login.")
	return nil
}
