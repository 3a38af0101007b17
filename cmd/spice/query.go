package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	stream  bool
	maxRows int
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run sql over Arrow Flight and print the result",
	Example: `  spice query "SELECT number, timestamp, base_fee_per_gas FROM eth.recent_blocks LIMIT 3"
  spice query --local --stream "SELECT * FROM taxi_trips"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		sql := strings.Join(args, " ")

		if !stream {
			spinner, _ := pterm.DefaultSpinner.Start("Running query")
			table, err := c.Query(ctx, sql)
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			defer table.Release()
			spinner.Success(pterm.Sprintf("%d rows", table.NumRows()))
			return printTable(table, maxRows)
		}

		batch := 0
		table, err := c.QueryStream(ctx, sql, func(t arrow.Table) error {
			batch++
			pterm.DefaultSection.Printfln("Batch %d: %d rows", batch, t.NumRows())
			return printTable(t, maxRows)
		})
		if err != nil {
			return err
		}
		defer table.Release()

		pterm.Success.Printfln("%d rows in %d batches", table.NumRows(), batch)
		return nil
	},
}

func init() {
	queryCmd.Flags().BoolVar(&stream, "stream", false, "print each record batch as it arrives")
	queryCmd.Flags().IntVar(&maxRows, "max-rows", 50, "rows to print per table, 0 for all")
}
