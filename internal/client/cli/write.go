package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

func (c *Cli) runWrite(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("missing arguments. Usage: pitlane write <METHOD> <path> [json|@file]")
	}
	method, path := args[0], args[1]

	var body json.RawMessage
	if len(args) > 2 {
		raw, err := readBody(args[2])
		if err != nil {
			return err
		}
		body = raw
	}

	res, err := c.data.Write(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	if res.Queued {
		c.io.Printf("Queued as #%d. It will be sent when the server is reachable.\n", res.Mutation.ID)
	} else {
		c.io.Println("✓ Saved on server")
	}

	if res.Record != nil {
		c.io.Println()
		c.io.Println(indentJSON(res.Record.Data))
	}

	return nil
}

// readBody разбирает аргумент тела: inline JSON или @file
func readBody(arg string) (json.RawMessage, error) {
	raw := []byte(arg)
	if name, ok := strings.CutPrefix(arg, "@"); ok {
		content, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read body file: %w", err)
		}
		raw = content
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
