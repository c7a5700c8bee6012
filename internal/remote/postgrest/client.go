// Package postgrest is a remote store backed by a Supabase/PostgREST API.
// Row-level security on the server is expected to enforce ownership; the
// client also filters by user_id so a misconfigured policy never widens a
// read.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/remote"
)

// Client is a PostgREST REST API client.
type Client struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// Config holds client configuration.
type Config struct {
	URL    string
	APIKey string
	// AccessToken is the signed-in user's JWT. APIKey is used when empty.
	AccessToken string
	HTTPClient  *http.Client
	// RequestsPerSecond caps outgoing requests; 0 disables the limit.
	RequestsPerSecond float64
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	c := &Client{
		baseURL:     strings.TrimSuffix(cfg.URL, "/"),
		apiKey:      cfg.APIKey,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}
	return c, nil
}

func (c *Client) List(ctx context.Context, table, owner string, f remote.Filter, order []remote.Order) ([]json.RawMessage, error) {
	params, err := filterParams(owner, f)
	if err != nil {
		return nil, err
	}
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, o := range order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts[i] = o.Field + "." + dir + ".nullslast"
		}
		params.Set("order", strings.Join(parts, ","))
	}

	resp, err := c.request(ctx, http.MethodGet, tablePath(table), params, nil, "")
	if err != nil {
		return nil, wrap("list", table, err)
	}
	return decodeRows("list", table, resp)
}

func (c *Client) Get(ctx context.Context, table, owner, id string) (json.RawMessage, error) {
	params, _ := filterParams(owner, remote.Filter{remote.Eq("id", id)})
	resp, err := c.request(ctx, http.MethodGet, tablePath(table), params, nil, "")
	if err != nil {
		return nil, wrap("get", table, err)
	}
	return firstRow("get", table, resp)
}

func (c *Client) Insert(ctx context.Context, table, owner string, fields remote.Fields) (json.RawMessage, error) {
	body := make(remote.Fields, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body.StripServerFields()
	body["user_id"] = owner

	resp, err := c.request(ctx, http.MethodPost, tablePath(table), nil, body, "return=representation")
	if err != nil {
		return nil, wrap("insert", table, err)
	}
	return firstRow("insert", table, resp)
}

func (c *Client) Update(ctx context.Context, table, owner, id string, fields remote.Fields) (json.RawMessage, error) {
	body := make(remote.Fields, len(fields))
	for k, v := range fields {
		body[k] = v
	}
	body.StripServerFields()

	params, _ := filterParams(owner, remote.Filter{remote.Eq("id", id)})
	resp, err := c.request(ctx, http.MethodPatch, tablePath(table), params, body, "return=representation")
	if err != nil {
		return nil, wrap("update", table, err)
	}
	return firstRow("update", table, resp)
}

func (c *Client) Delete(ctx context.Context, table, owner, id string) error {
	params, _ := filterParams(owner, remote.Filter{remote.Eq("id", id)})
	resp, err := c.request(ctx, http.MethodDelete, tablePath(table), params, nil, "return=representation")
	if err != nil {
		return wrap("delete", table, err)
	}
	_, err = firstRow("delete", table, resp)
	return err
}

func (c *Client) DeleteWhere(ctx context.Context, table, owner string, f remote.Filter) (int, error) {
	params, err := filterParams(owner, f)
	if err != nil {
		return 0, err
	}
	resp, err := c.request(ctx, http.MethodDelete, tablePath(table), params, nil, "return=representation")
	if err != nil {
		return 0, wrap("delete_where", table, err)
	}
	rows, err := decodeRows("delete_where", table, resp)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *Client) CopyHabitsToWeek(ctx context.Context, owner, fromWeek, toWeek string) (int, error) {
	params := map[string]string{
		"p_user_id":   owner,
		"p_from_week": fromWeek,
		"p_to_week":   toWeek,
	}
	resp, err := c.request(ctx, http.MethodPost, "/rest/v1/rpc/"+constants.RPCCopyHabitsToWeek, nil, params, "")
	if err != nil {
		return 0, wrap("copy_habits", constants.TableHabits, err)
	}
	if err := resp.Error(); err != nil {
		return 0, wrap("copy_habits", constants.TableHabits, err)
	}
	var inserted int
	if err := json.Unmarshal(resp.Body, &inserted); err != nil {
		return 0, fmt.Errorf("copy_habits: unexpected response %q: %w", resp.Body, remote.ErrRejected)
	}
	return inserted, nil
}

func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.request(ctx, http.MethodGet, "/rest/v1/", nil, nil, "")
	if err != nil {
		return wrap("ping", "", err)
	}
	if err := resp.Error(); err != nil {
		return wrap("ping", "", err)
	}
	return nil
}

func tablePath(table string) string {
	return "/rest/v1/" + url.PathEscape(table)
}

// filterParams encodes the owner scope and a filter as PostgREST query
// parameters (col=op.value).
func filterParams(owner string, f remote.Filter) (url.Values, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrRejected, err)
	}

	params := url.Values{}
	params.Add("user_id", "eq."+owner)
	for _, p := range f {
		switch p.Op {
		case remote.OpIn:
			vals := make([]string, len(p.Values))
			for i, v := range p.Values {
				vals[i] = quoteListValue(formatValue(v))
			}
			params.Add(p.Field, "in.("+strings.Join(vals, ",")+")")
		case remote.OpIsNull:
			if p.Value.(bool) {
				params.Add(p.Field, "is.null")
			} else {
				params.Add(p.Field, "not.is.null")
			}
		default:
			params.Add(p.Field, string(p.Op)+"."+formatValue(p.Value))
		}
	}
	return params, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}

// quoteListValue double-quotes values that contain PostgREST list syntax.
func quoteListValue(s string) string {
	if !strings.ContainsAny(s, `,()"\ `) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// Response is a raw PostgREST response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Error returns a classified error when the response indicates failure.
func (r *Response) Error() error {
	if r.StatusCode < 400 {
		return nil
	}

	sentinel := remote.ErrRejected
	switch {
	case r.StatusCode == http.StatusNotFound, r.StatusCode == http.StatusNotAcceptable:
		sentinel = remote.ErrNotFound
	case r.StatusCode == http.StatusRequestTimeout, r.StatusCode == http.StatusTooManyRequests, r.StatusCode >= 500:
		sentinel = remote.ErrUnavailable
	}

	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(r.Body, &errResp); err == nil {
		if errResp.Message != "" {
			return fmt.Errorf("%w: %s (code %s)", sentinel, errResp.Message, errResp.Code)
		}
		if errResp.Error != "" {
			return fmt.Errorf("%w: %s", sentinel, errResp.Error)
		}
	}
	return fmt.Errorf("%w: status %d", sentinel, r.StatusCode)
}

func decodeRows(op, table string, resp *Response) ([]json.RawMessage, error) {
	if err := resp.Error(); err != nil {
		return nil, wrap(op, table, err)
	}
	rows := []json.RawMessage{}
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return nil, fmt.Errorf("%s %s: %w: decode response: %v", op, table, remote.ErrRejected, err)
	}
	return rows, nil
}

func firstRow(op, table string, resp *Response) (json.RawMessage, error) {
	rows, err := decodeRows(op, table, resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", op, table, remote.ErrNotFound)
	}
	return rows[0], nil
}

func wrap(op, table string, err error) error {
	if errors.Is(err, remote.ErrNotFound) || errors.Is(err, remote.ErrRejected) || errors.Is(err, remote.ErrUnavailable) {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	return fmt.Errorf("%s %s: %w: %v", op, table, remote.ErrUnavailable, err)
}

func (c *Client) request(ctx context.Context, method, path string, params url.Values, body any, prefer string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", remote.ErrRejected, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", remote.ErrRejected, err)
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	return c.do(req)
}

func (c *Client) setHeaders(req *http.Request) {
	token := c.accessToken
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}
