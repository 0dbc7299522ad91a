package gateway

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

	"chatcall/backend/internal/auth"
)

// Client implements Gateway over the REST contract. It is built explicitly
// per component wiring; there is no package-level client.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
}

// NewClient creates a gateway client for baseURL (e.g. "http://gw:8090").
// httpClient may be nil.
func NewClient(baseURL string, tokens auth.TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if tokens == nil {
		tokens = auth.StaticToken("")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type createdBody struct {
	ID string `json:"id"`
}

func (c *Client) Create(ctx context.Context, collection string, doc any) (string, error) {
	var out createdBody
	if err := c.do(ctx, http.MethodPost, c.path(collection), doc, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: create %s returned no id", ErrUnavailable, collection)
	}
	return out.ID, nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.path(collection, id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Query(ctx context.Context, collection string, q Query) (*QueryResult, error) {
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	params, err := EncodeQuery(q)
	if err != nil {
		return nil, err
	}
	var out QueryResult
	if err := c.do(ctx, http.MethodGet, c.path(collection)+"?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	return c.do(ctx, http.MethodPatch, c.path(collection, id), patch, nil)
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.path(collection, id), nil, nil)
}

func (c *Client) path(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: obtain credential: %v", ErrUnauthorized, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 300 {
		return c.statusError(method, target, resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Client) statusError(method, target string, status int, payload []byte) error {
	var eb errorBody
	_ = json.Unmarshal(payload, &eb)
	detail := eb.Message
	if detail == "" {
		detail = http.StatusText(status)
	}

	var sentinel error
	switch {
	case status == http.StatusUnauthorized:
		// The credential owner decides what invalidation means.
		c.tokens.Invalidate()
		sentinel = ErrUnauthorized
	case status == http.StatusNotFound:
		sentinel = ErrNotFound
	case status == http.StatusConflict:
		sentinel = ErrConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		sentinel = ErrInvalid
	default:
		sentinel = ErrUnavailable
	}
	return fmt.Errorf("%w: %s %s: %d %s", sentinel, method, target, status, detail)
}

// Reserved query parameters; every other parameter is an equality filter.
const (
	paramLimit = "limit"
	paramPage  = "page"
	paramSort  = "sort"
	nullValue  = "null"
)

// EncodeQuery renders q as URL parameters. A descending sort is written as
// "-field"; nil filter values are written as "null".
func EncodeQuery(q Query) (url.Values, error) {
	params := url.Values{}
	filter, err := NormalizeFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	for k, v := range filter {
		if k == paramLimit || k == paramPage || k == paramSort {
			return nil, fmt.Errorf("%w: filter field %q is reserved", ErrInvalid, k)
		}
		if v == nil {
			params.Set(k, nullValue)
			continue
		}
		params.Set(k, ScalarString(v))
	}
	params.Set(paramLimit, strconv.Itoa(q.Limit))
	params.Set(paramPage, strconv.Itoa(q.Page))
	if q.Sort != nil && q.Sort.Field != "" {
		field := q.Sort.Field
		if q.Sort.Desc {
			field = "-" + field
		}
		params.Set(paramSort, field)
	}
	return params, nil
}

// DecodeQuery is the inverse of EncodeQuery.
func DecodeQuery(params url.Values) (Query, error) {
	q := Query{Filter: map[string]any{}}
	var err error
	if q.Limit, err = strconv.Atoi(params.Get(paramLimit)); err != nil {
		return q, fmt.Errorf("%w: limit must be an integer", ErrInvalid)
	}
	if q.Page, err = strconv.Atoi(params.Get(paramPage)); err != nil {
		return q, fmt.Errorf("%w: page must be an integer", ErrInvalid)
	}
	if s := params.Get(paramSort); s != "" {
		desc := strings.HasPrefix(s, "-")
		q.Sort = &Sort{Field: strings.TrimPrefix(s, "-"), Desc: desc}
	}
	for k, vs := range params {
		if k == paramLimit || k == paramPage || k == paramSort || len(vs) == 0 {
			continue
		}
		if vs[0] == nullValue {
			q.Filter[k] = nil
			continue
		}
		q.Filter[k] = vs[0]
	}
	return q, ValidateQuery(q)
}
