package spice

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
	spiceerr "github.com/spiceai/spice-sql-go/errors"
	"github.com/spiceai/spice-sql-go/logger"
	"github.com/spiceai/spice-sql-go/rows"
)

// maximum accepted notification body
const maxNotificationSize = 1 << 20

// NotificationFunc receives the merged results of a completed async query,
// or the error raised while fetching them.
type NotificationFunc func(ctx context.Context, page *rows.ResultPage, err error)

// NotificationHandler returns an http.Handler for the webhook registered with
// SubmitAsyncQuery. A valid notification is answered with 202 Accepted and
// its results are fetched in the background and passed to fn. Invalid
// notifications are answered with 400 and never reach fn.
func (c *Client) NotificationHandler(fn NotificationFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationSize))
		if err != nil {
			http.Error(w, "could not read body", http.StatusBadRequest)
			return
		}

		n, err := ParseQueryCompleteNotification(r.Context(), body)
		if err != nil {
			logger.Warn().Err(err).Msg("spice: rejected query completion notification")
			status := http.StatusBadRequest
			if !errors.Is(err, spiceerr.ValidationError) {
				status = http.StatusInternalServerError
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.WriteHeader(http.StatusAccepted)

		// the request context is cancelled once the response is written
		ctx := context.WithoutCancel(r.Context())
		go func() {
			page, err := c.GetQueryResultsFromNotification(ctx, body)
			if err != nil {
				logger.WithContext("", n.QueryID).Err(err).Msg("spice: failed to fetch notified query results")
			}
			fn(ctx, page, err)
		}()
	})
}
