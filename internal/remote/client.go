package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ohler55/ojg/oj"
	"github.com/overseasops/claimgrid/api"
)

// TotalCountHeader carries the exact result count for a Select, before
// offset/limit slicing.
const TotalCountHeader = "X-Total-Count"

// Client talks to one claims table over the hosted query API.
// It is safe for concurrent use; cancellation comes from the caller's
// context and aborts the underlying transport.
type Client struct {
	base   string
	table  string
	apiKey string
	http   *http.Client
}

// NewClient builds a client for table at baseURL. apiKey may be empty for
// unauthenticated backends (the local stub).
func NewClient(baseURL, table, apiKey string) *Client {
	if table == "" {
		table = "claims"
	}
	return &Client{
		base:   baseURL,
		table:  table,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) url(path string) string {
	return c.base + "/" + c.table + path
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		return nil, err
	}
	return resp, nil
}

// Select runs q and returns the page rows plus the exact total count.
func (c *Client) Select(ctx context.Context, q *Query) ([]api.ClaimRecord, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("")+"?"+q.Encode().Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build select: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }() // safe to ignore

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("select %s: status %d", c.table, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read select body: %w", err)
	}
	var rows []api.ClaimRecord
	if err := oj.Unmarshal(body, &rows); err != nil {
		return nil, 0, fmt.Errorf("decode select rows: %w", err)
	}
	total := len(rows)
	if h := resp.Header.Get(TotalCountHeader); h != "" {
		if n, err := strconv.Atoi(h); err == nil {
			total = n
		}
	}
	return rows, total, nil
}

// Get fetches one record by id. Returns ErrNotFound for a missing id.
func (c *Client) Get(ctx context.Context, id string) (*api.ClaimRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/"+id), nil)
	if err != nil {
		return nil, fmt.Errorf("build get: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }() // safe to ignore

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("get %s/%s: status %d", c.table, id, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read get body: %w", err)
	}
	var rec api.ClaimRecord
	if err := oj.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return &rec, nil
}

// Insert creates a record and returns it as stored (id and timestamps
// assigned by the backend).
func (c *Client) Insert(ctx context.Context, rec *api.ClaimRecord) (*api.ClaimRecord, error) {
	payload, err := oj.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode insert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(""), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }() // safe to ignore

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("insert into %s: status %d", c.table, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read insert body: %w", err)
	}
	var stored api.ClaimRecord
	if err := oj.Unmarshal(body, &stored); err != nil {
		return nil, fmt.Errorf("decode inserted record: %w", err)
	}
	return &stored, nil
}

// Update applies fields to the record with the given id and returns the
// number of rows the backend actually touched. Zero with a nil error means
// another writer won the race; callers treat it as a late conflict.
//
// When expectUpdatedAt is non-zero the backend only applies the write if
// the stored updated_at still matches, the compare half of the
// optimistic-concurrency check.
func (c *Client) Update(ctx context.Context, id string, fields map[string]any, expectUpdatedAt time.Time) (int, error) {
	payload, err := oj.Marshal(fields)
	if err != nil {
		return 0, fmt.Errorf("encode update: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.url("/"+id), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !expectUpdatedAt.IsZero() {
		req.Header.Set("If-Unmodified-Since", expectUpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }() // safe to ignore

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, ErrNotFound
	case http.StatusPreconditionFailed:
		return 0, nil // stale updated_at: zero rows affected
	default:
		return 0, fmt.Errorf("update %s/%s: status %d", c.table, id, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read update body: %w", err)
	}
	var result struct {
		RowsAffected int `json:"rows_affected"`
	}
	if err := oj.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("decode update result: %w", err)
	}
	return result.RowsAffected, nil
}

// Delete removes a record by id. Deleting a missing id returns ErrNotFound.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/"+id), nil)
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }() // safe to ignore

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("delete %s/%s: status %d", c.table, id, resp.StatusCode)
	}
}
