// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// QueryBuilder builds and executes a request against one table of the
// backend's REST row API. Builders are cheap, single-use values obtained
// from Client.From; they are not safe for concurrent use (the shared Client
// is).
//
// The filter dialect follows the backend: column=eq.value query parameters,
// order=column.asc|desc, embedded selects like "*,author:profiles(*)", and
// an items Range header for offset windows.
type QueryBuilder struct {
	client *Client
	table  string

	selectCols string
	filters    []filter
	order      string
	rangeFrom  int
	rangeTo    int
	hasRange   bool
	limit      int
	hasLimit   bool
	single     bool
}

type filter struct {
	column string
	value  string
}

// Select sets the column (and embedded relation) list to return.
func (q *QueryBuilder) Select(cols string) *QueryBuilder {
	q.selectCols = cols
	return q
}

// Eq adds an equality filter on a column.
func (q *QueryBuilder) Eq(column string, value any) *QueryBuilder {
	q.filters = append(q.filters, filter{column: column, value: fmt.Sprint(value)})
	return q
}

// Order sets the result ordering on a column.
func (q *QueryBuilder) Order(column string, descending bool) *QueryBuilder {
	dir := "asc"
	if descending {
		dir = "desc"
	}
	q.order = column + "." + dir
	return q
}

// Range requests the inclusive row window [from, to].
func (q *QueryBuilder) Range(from, to int) *QueryBuilder {
	q.rangeFrom, q.rangeTo, q.hasRange = from, to, true
	return q
}

// Limit caps the number of returned rows.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit, q.hasLimit = n, true
	return q
}

// Single requests exactly one row. The backend answers with an error status
// when zero or more than one row matches, which surfaces as an *APIError.
func (q *QueryBuilder) Single() *QueryBuilder {
	q.single = true
	return q
}

// Get executes the read and decodes the response into out: a slice pointer
// normally, a struct pointer when Single was requested.
func (q *QueryBuilder) Get(ctx context.Context, out any) error {
	req, err := q.request(ctx, http.MethodGet, nil)
	if err != nil {
		return err
	}

	if q.hasRange {
		req.Header.Set("Range-Unit", "items")
		req.Header.Set("Range", fmt.Sprintf("%d-%d", q.rangeFrom, q.rangeTo))
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}

	return q.execute(req, out)
}

// Insert adds one row (or a slice of rows) to the table.
func (q *QueryBuilder) Insert(ctx context.Context, row any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("%s insert marshal: %w", q.table, err)
	}

	req, err := q.request(ctx, http.MethodPost, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", "return=minimal")

	return q.execute(req, nil)
}

// Delete removes the rows matching every predicate in match. The predicates
// travel with the request, so the backend enforces them; callers use this to
// pin ownership checks server-side.
func (q *QueryBuilder) Delete(ctx context.Context, match map[string]any) error {
	for column, value := range match {
		q.Eq(column, value)
	}

	req, err := q.request(ctx, http.MethodDelete, nil)
	if err != nil {
		return err
	}
	return q.execute(req, nil)
}

// request assembles the URL with filters and the standing headers.
func (q *QueryBuilder) request(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	params := url.Values{}
	if q.selectCols != "" {
		params.Set("select", q.selectCols)
	}
	for _, f := range q.filters {
		params.Add(f.column, "eq."+f.value)
	}
	if q.order != "" {
		params.Set("order", q.order)
	}
	if q.hasLimit {
		params.Set("limit", fmt.Sprint(q.limit))
	}

	u := q.client.baseURL + "/rest/v1/" + q.table
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", q.table, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", q.client.apiKey)
	req.Header.Set("Authorization", "Bearer "+q.client.bearerToken())
	return req, nil
}

// execute runs the request, checks the status, and decodes into out when
// non-nil.
func (q *QueryBuilder) execute(req *http.Request, out any) error {
	resp, err := q.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s http: %w", q.table, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s read body: %w", q.table, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s unmarshal: %w", q.table, err)
	}
	return nil
}
