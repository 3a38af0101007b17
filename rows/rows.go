package rows

import (
	"github.com/apache/arrow/go/v12/arrow"
)

// OnDataFunc receives one table per record batch frame of a streamed query,
// holding only that frame's rows. The table is released when the function
// returns; call Retain to keep it longer. Returning an error stops the query.
type OnDataFunc func(table arrow.Table) error

// PageIterator walks the REST result pages of a completed async query.
type PageIterator interface {
	// Retrieve the next page.
	// Will return io.EOF if there are no more pages
	Next() (*ResultPage, error)

	// Return true if the iterator contains more pages, false otherwise.
	HasNext() bool

	// Release any resources in use by the iterator.
	Close()
}
