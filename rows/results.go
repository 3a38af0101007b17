package rows

// ColumnType names the type of a result column, for example {"name": "Int64"}.
type ColumnType struct {
	Name string `json:"name"`
}

type ColumnSchema struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// ResultPage is one offset/limit slice of an async query result.
// RowCount is the total for the query and is the same on every page.
type ResultPage struct {
	RowCount int64                    `json:"rowCount"`
	Schema   []ColumnSchema           `json:"schema"`
	Rows     []map[string]interface{} `json:"rows"`
}

// Notification registers a completion callback for an async query.
type Notification struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URI  string `json:"uri"`
}

// AsyncQueryHandle identifies a submitted async query.
type AsyncQueryHandle struct {
	QueryID string
	SQL     string
	Webhook Notification
}

// QueryCompleteNotification is the payload posted to a webhook when an async query finishes.
type QueryCompleteNotification struct {
	AppID          int64  `json:"appId"`
	QueryID        string `json:"queryId"`
	RequestTime    string `json:"requestTime"`
	CompletionTime string `json:"completionTime"`
	State          string `json:"state"`
	SQL            string `json:"sql"`
	RowCount       int64  `json:"rowCount"`
}

type LatestExchangePrices struct {
	Prices   map[string]string `json:"prices,omitempty"`
	MinPrice string            `json:"minPrice,omitempty"`
	MaxPrice string            `json:"maxPrice,omitempty"`
	AvePrice string            `json:"avePrice,omitempty"`
}

// LatestPrices is keyed by trading pair, for example "BTC-USD".
type LatestPrices map[string]LatestExchangePrices

type HLOCPrice struct {
	Timestamp string   `json:"timestamp"`
	Price     float64  `json:"price"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	Open      *float64 `json:"open,omitempty"`
	Close     *float64 `json:"close,omitempty"`
}

// HistoricalPrices is keyed by trading pair.
type HistoricalPrices map[string][]HLOCPrice
