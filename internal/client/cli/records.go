package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iudanet/pitlane/internal/models"
)

func (c *Cli) runTables(_ context.Context, _ []string) error {
	for _, table := range models.Tables {
		c.io.Println(table)
	}
	return nil
}

func (c *Cli) runList(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing table. Usage: pitlane list <table>")
	}
	table := args[0]
	if err := models.ValidateTable(table); err != nil {
		return err
	}

	recs, err := c.data.List(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", table, err)
	}

	if len(recs) == 0 {
		c.io.Printf("No records in %s.\n", table)
		return nil
	}

	c.io.Printf("Found %d record(s) in %s:\n", len(recs), table)
	c.io.Println()
	for _, rec := range recs {
		c.io.Printf("%s\t%s\n", rec.ID, compactJSON(rec.Data))
	}

	return nil
}

func (c *Cli) runGet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("missing arguments. Usage: pitlane get <table> <id>")
	}
	table, id := args[0], args[1]
	if err := models.ValidateTable(table); err != nil {
		return err
	}

	rec, err := c.data.Read(ctx, table, id)
	if err != nil {
		return fmt.Errorf("failed to read %s/%s: %w", table, id, err)
	}
	if rec == nil {
		return fmt.Errorf("record not found: %s/%s", table, id)
	}

	c.io.Printf("Table:   %s\n", rec.Table)
	c.io.Printf("ID:      %s\n", rec.ID)
	c.io.Printf("Updated: %s\n", rec.UpdatedAt.Local().Format(time.RFC3339))
	c.io.Println()
	c.io.Println(indentJSON(rec.Data))

	return nil
}

func (c *Cli) runClear(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing table. Usage: pitlane clear <table>")
	}
	table := args[0]
	if err := models.ValidateTable(table); err != nil {
		return err
	}

	if err := c.records.Clear(ctx, table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	c.io.Printf("✓ Cached records of %s removed\n", table)
	// Очередь не трогаем: отложенные записи уйдут на сервер как обычно
	return nil
}

func compactJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

func indentJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return string(data)
	}
	return buf.String()
}
