/*
Package spice is a client for running sql against a Spice runtime or the Spice cloud.

# Usage

Queries are sent over Arrow Flight and results come back as Arrow tables:

	import (
		"context"
		"log"

		spice "github.com/spiceai/spice-sql-go"
	)

	func main() {
		client, err := spice.NewClient(spice.WithAPIKey("<api key>"))
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()

		table, err := client.Query(context.Background(), "SELECT number, timestamp FROM eth.recent_blocks LIMIT 10")
		if err != nil {
			log.Fatal(err)
		}
		defer table.Release()
	}

Use WithLocalRuntime() instead of an api key to query a runtime listening on
localhost:50051 (Flight) and http://localhost:8090 (REST).

# Streaming

QueryStream calls a function with each record batch as it arrives:

	table, err := client.QueryStream(ctx, sql, func(batch arrow.Table) error {
		fmt.Println(batch.NumRows())
		return nil
	})

Batches are released when the function returns; call Retain to keep one.

# Retries

A query is retried when it fails with a transient transport error, up to
WithMaxRetries times (3 by default) with exponential backoff configured by
WithBackoff. Once a batch has been passed to the QueryStream function the
query is never retried; the failure is returned as a partial delivery error:

	if errors.Is(err, spiceerr.PartialDeliveryError) {
		// some batches were already handled
	}

# Async queries

SubmitAsyncQuery starts a query and returns its id. The service posts a
completion notification to the registered webhook; NotificationHandler serves
that webhook and fetches every result page. Without a webhook, poll with
WaitForQueryResults, or fetch pages directly with GetQueryResults and the
WithOffset and WithLimit options.

# Errors

Errors are classified by the sentinels of the errors package:
ValidationError for rejected input, TransportError for failed or rejected
calls, ProtocolError for responses that break the wire contract and
PartialDeliveryError for streams that failed after delivering rows.

# Logging

Logging uses the logger package. The default level is warn; change it with
logger.SetLogLevel. Attach a correlation id with
queryctx.NewContextWithCorrelationId to tag the log messages and spans of a
call.

# Environment

ParamsFromEnv reads SPICE_API_KEY, SPICE_FLIGHT_URL, SPICE_HTTP_URL,
SPICE_FLIGHT_TLS, SPICE_MAX_RETRIES, SPICE_POLL_INTERVAL and
SPICE_USER_AGENT_ENTRY; apply them with WithParams.
*/
package spice
