package main

import (
	"context"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	spice "github.com/spiceai/spice-sql-go"
)

var refreshSQL string

var refreshCmd = &cobra.Command{
	Use:   "refresh <dataset>",
	Short: "Refresh an accelerated dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.RefreshDataset(context.Background(), args[0], &spice.RefreshOptions{RefreshSQL: refreshSQL}); err != nil {
			return err
		}

		pterm.Success.Printfln("refresh of %s started", args[0])
		return nil
	},
}

func init() {
	refreshCmd.Flags().StringVar(&refreshSQL, "sql", "", "refresh only the rows selected by this sql")
}
