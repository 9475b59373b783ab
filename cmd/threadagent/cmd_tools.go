package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
)

// ToolsCmd lists the tools the agent can call
type ToolsCmd struct {
	Format string `short:"f" enum:"table,json" default:"table" help:"Output format"`
}

type toolView struct {
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	RequiresApproval bool        `json:"requires_approval"`
	Parameters       interface{} `json:"parameters,omitempty"`
}

func (c *ToolsCmd) Run(ctx context.Context, cli *CLI) error {
	e, err := newEngine(ctx, cli, engineOptions{readOnly: true})
	if err != nil {
		return err
	}
	defer e.Close(context.WithoutCancel(ctx))

	var views []toolView
	for _, entry := range e.registry.Entries() {
		views = append(views, toolView{
			Name:             entry.Tool.GetName(),
			Description:      entry.Tool.GetDescription(),
			RequiresApproval: entry.RequiresApproval,
			Parameters:       entry.Tool.GetParameters(),
		})
	}

	if c.Format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tAPPROVAL\tDESCRIPTION")
	for _, v := range views {
		approval := "auto"
		if v.RequiresApproval {
			approval = "required"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.Name, approval, firstLine(v.Description))
	}
	return w.Flush()
}
