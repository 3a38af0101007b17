package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	spice "github.com/spiceai/spice-sql-go"
	"github.com/spiceai/spice-sql-go/rows"
)

var (
	queryName string
	offset    int
	limit     int
	allPages  bool
	wait      bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <sql> <webhook uri>",
	Short: "Submit sql for async execution",
	Long: `submit starts sql on the service and prints the query id. The service posts a
completion notification to the webhook uri when the query has finished.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		name := queryName
		if name == "" {
			name = "spice-cli-" + uuid.NewString()[:8]
		}

		handle, err := c.SubmitAsyncQuery(context.Background(), name, args[0], args[1])
		if err != nil {
			return err
		}

		pterm.Success.Printfln("submitted %s", name)
		pterm.Println(handle.QueryID)
		return nil
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results <query id>",
	Short: "Print the results of a completed async query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		queryId := args[0]
		var page *rows.ResultPage
		switch {
		case wait:
			spinner, _ := pterm.DefaultSpinner.Start("Waiting for query " + queryId)
			page, err = c.WaitForQueryResults(ctx, queryId)
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			spinner.Success()
		case allPages:
			page, err = c.GetAllQueryResults(ctx, queryId)
		default:
			var opts []spice.PageOption
			if cmd.Flags().Changed("offset") {
				opts = append(opts, spice.WithOffset(offset))
			}
			if cmd.Flags().Changed("limit") {
				opts = append(opts, spice.WithLimit(limit))
			}
			page, err = c.GetQueryResults(ctx, queryId, opts...)
		}
		if err != nil {
			return err
		}

		pterm.Info.Printfln("%d of %d rows", len(page.Rows), page.RowCount)
		return printPage(page)
	},
}

func init() {
	submitCmd.Flags().StringVar(&queryName, "name", "", "notification name, generated when empty")

	resultsCmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	resultsCmd.Flags().IntVar(&limit, "limit", 500, "rows to return, at most 500")
	resultsCmd.Flags().BoolVar(&allPages, "all", false, "fetch every page")
	resultsCmd.Flags().BoolVar(&wait, "wait", false, "poll until the query completes, then fetch every page")
}
