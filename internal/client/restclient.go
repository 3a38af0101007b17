package client

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/spiceai/spice-sql-go/auth"
	"github.com/spiceai/spice-sql-go/internal/agent"
	"github.com/spiceai/spice-sql-go/internal/config"
	spiceerrint "github.com/spiceai/spice-sql-go/internal/errors"
	"github.com/spiceai/spice-sql-go/logger"
	"github.com/spiceai/spice-sql-go/queryctx"
	"github.com/spiceai/spice-sql-go/rows"
)

const UserAgentHeader = "X-Spice-User-Agent"

type SubmitQueryRequest struct {
	SQL           string              `json:"sql"`
	Notifications []rows.Notification `json:"notifications"`
}

type SubmitQueryResponse struct {
	QueryID string `json:"queryId"`
}

type RefreshRequest struct {
	RefreshSQL string `json:"refresh_sql,omitempty"`
}

type LatestPricesRequest struct {
	Symbols []string `json:"symbols"`
	Convert string   `json:"convert,omitempty"`
}

// RestClient calls the REST api of the query service.
type RestClient struct {
	baseURL   *url.URL
	http      *retryablehttp.Client
	auth      auth.Authenticator
	userAgent string
}

func NewRestClient(cfg *config.Config, authenticator auth.Authenticator) (*RestClient, error) {
	u, err := url.Parse(strings.TrimRight(cfg.HTTPURL, "/"))
	if err != nil {
		return nil, spiceerrint.NewValidationError(context.Background(), spiceerrint.ErrInvalidHTTPURL, err)
	}
	if authenticator == nil {
		authenticator = auth.NewAPIKeyAuthenticator(cfg.APIKey)
	}

	return &RestClient{
		baseURL:   u,
		http:      NewRetryableClient(cfg),
		auth:      authenticator,
		userAgent: agent.UserAgent(cfg.ClientName, cfg.ClientVersion, cfg.UserAgentEntry),
	}, nil
}

// SubmitQuery posts sql for asynchronous execution.
func (rc *RestClient) SubmitQuery(ctx context.Context, req *SubmitQueryRequest) (*SubmitQueryResponse, error) {
	var resp SubmitQueryResponse
	if _, err := rc.do(ctx, submitQuery, http.MethodPost, "/v1/sql", nil, req, &resp, http.StatusOK, http.StatusCreated, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetQueryResults fetches one page of a completed async query.
func (rc *RestClient) GetQueryResults(ctx context.Context, queryId string, query url.Values) (*rows.ResultPage, error) {
	var page rows.ResultPage
	if _, err := rc.do(ctx, getQueryResults, http.MethodGet, "/v1/sql/"+url.PathEscape(queryId), query, nil, &page, http.StatusOK); err != nil {
		return nil, err
	}
	return &page, nil
}

// RefreshDataset asks the runtime to refresh an accelerated dataset.
func (rc *RestClient) RefreshDataset(ctx context.Context, dataset string, req *RefreshRequest) error {
	var body interface{}
	if req != nil && req.RefreshSQL != "" {
		body = req
	}
	path := "/v1/datasets/" + url.PathEscape(dataset) + "/acceleration/refresh"
	_, err := rc.do(ctx, refreshDataset, http.MethodPost, path, nil, body, nil, http.StatusOK, http.StatusCreated)
	return err
}

func (rc *RestClient) GetLatestPrices(ctx context.Context, req *LatestPricesRequest) (rows.LatestPrices, error) {
	var prices rows.LatestPrices
	if _, err := rc.do(ctx, getLatestPrices, http.MethodPost, "/v1/prices", nil, req, &prices, http.StatusOK); err != nil {
		return nil, err
	}
	return prices, nil
}

func (rc *RestClient) GetHistoricalPrices(ctx context.Context, query url.Values) (rows.HistoricalPrices, error) {
	var prices rows.HistoricalPrices
	if _, err := rc.do(ctx, getHistoricalPrices, http.MethodGet, "/v1/prices/historical", query, nil, &prices, http.StatusOK); err != nil {
		return nil, err
	}
	return prices, nil
}

// Close releases idle connections held by the http client.
func (rc *RestClient) Close() {
	rc.http.HTTPClient.CloseIdleConnections()
}

func (rc *RestClient) do(
	ctx context.Context,
	method clientMethod,
	httpMethod string,
	path string,
	query url.Values,
	in interface{},
	out interface{},
	okStatus ...int,
) (int, error) {
	ctx = context.WithValue(ctx, ClientMethod, method)
	log := logger.WithContext(queryctx.CorrelationIdFromContext(ctx), queryctx.QueryIdFromContext(ctx))
	msg, start := log.Track(method.String())
	defer log.Duration(msg, start)

	u := rc.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return 0, spiceerrint.NewValidationError(ctx, "could not encode request body", err)
		}
	}

	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, httpMethod, u.String(), rawBody)
	if err != nil {
		return 0, spiceerrint.NewRequestError(ctx, spiceerrint.ErrRequestFailed, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", AcceptEncoding)
	req.Header.Set(UserAgentHeader, rc.userAgent)
	req.Header.Set("User-Agent", rc.userAgent)
	if err := rc.auth.Authenticate(req.Request); err != nil {
		return 0, spiceerrint.NewRequestError(ctx, spiceerrint.ErrRequestFailed, err)
	}

	resp, err := rc.http.Do(req)
	if resp == nil {
		if err == nil {
			err = context.Canceled
		}
		return 0, spiceerrint.NewRequestError(ctx, spiceerrint.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := readBody(resp)
	if err != nil {
		return resp.StatusCode, spiceerrint.NewProtocolError(ctx, spiceerrint.ErrInvalidResultsBody, err)
	}

	if !statusIn(resp.StatusCode, okStatus) {
		log.Debug().Msgf("spice: %s %s returned %d", httpMethod, u.Path, resp.StatusCode)
		return resp.StatusCode, spiceerrint.NewHTTPError(ctx, spiceerrint.ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(respBody))
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return resp.StatusCode, spiceerrint.NewProtocolError(ctx, spiceerrint.ErrInvalidResultsBody, err)
		}
	}

	return resp.StatusCode, nil
}

func statusIn(status int, ok []int) bool {
	for _, s := range ok {
		if s == status {
			return true
		}
	}
	return false
}
