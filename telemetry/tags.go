package telemetry

// Attribute names for operation spans and measurements
const (
	TagOperation     = "spice.operation"
	TagCorrelationID = "spice.correlation_id"
	TagQueryID       = "spice.query_id"
	TagStatus        = "spice.status"
	TagTransport     = "spice.transport"
)

// Attribute names for result metrics
const (
	TagAttempt    = "spice.attempt"
	TagBatchCount = "result.batch_count"
	TagRowCount   = "result.row_count"
	TagPageCount  = "result.page_count"
	TagPageOffset = "result.page_offset"
)

// Attribute names for error metrics
const (
	TagErrorType = "error.type"
	TagErrorCode = "error.code"
)

// Operation names
const (
	OperationQuery            = "query"
	OperationQueryStream      = "query_stream"
	OperationSubmit           = "submit_async_query"
	OperationGetPage          = "get_query_results"
	OperationGetAllPages      = "get_all_query_results"
	OperationWaitForResults   = "wait_for_query_results"
	OperationRefreshDataset   = "refresh_dataset"
	OperationLatestPrices     = "get_latest_prices"
	OperationHistoricalPrices = "get_historical_prices"
)

// Transport names
const (
	TransportFlight = "flight"
	TransportHTTP   = "http"
)
