package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// ModelsCmd lists the models the configured provider offers
type ModelsCmd struct {
	Search string `short:"s" help:"Only models whose id or name contains this"`
	Format string `short:"f" enum:"table,json" default:"table" help:"Output format"`
}

func (c *ModelsCmd) Run(ctx context.Context, cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	logger, logFile, err := newLogger(cfg.Observability.Logging)
	if err != nil {
		return err
	}
	defer logFile.Close()

	client, err := newModelClient(cfg.Provider, logger)
	if err != nil {
		return err
	}
	models, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	query := strings.ToLower(c.Search)
	filtered := models[:0:0]
	for _, m := range models {
		if query == "" || strings.Contains(strings.ToLower(m.ID), query) || strings.Contains(strings.ToLower(m.Name), query) {
			filtered = append(filtered, m)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID < filtered[j].ID })

	if c.Format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(filtered)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER")
	for _, m := range filtered {
		marker := ""
		if m.ID == cfg.Provider.Model {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\n", m.ID, marker, m.Name, m.OwnedBy)
	}
	return w.Flush()
}
