package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/certflow/internal/model"
)

type history struct {
	Dispatches []*model.Dispatch `json:"dispatches"`
	Events     []*model.Event    `json:"events"`
}

var historyCmd = &cobra.Command{
	Use:     "history <id>",
	Short:   "Show sent emails and recorded events",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id := args[0]
		ds, err := certClient.Dispatches(ctx, id)
		if err != nil {
			return fmt.Errorf("listing dispatches of %s: %w", id, err)
		}
		evs, err := certClient.Events(ctx, id)
		if err != nil {
			return fmt.Errorf("listing events of %s: %w", id, err)
		}
		if jsonOutput {
			return printJSON(history{Dispatches: ds, Events: evs})
		}
		printDispatches(os.Stdout, ds)
		if len(evs) > 0 {
			fmt.Println()
			printEvents(os.Stdout, evs)
		}
		return nil
	},
}

var workspacesCmd = &cobra.Command{
	Use:     "workspaces",
	Short:   "List certificates open on the server",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := certClient.Workspaces(context.Background())
		if err != nil {
			return fmt.Errorf("listing workspaces: %w", err)
		}
		return output(entries, printWorkspaces)
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the certflow service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := certClient.Health(context.Background())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Printf("Health: %s\n", status)
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}
