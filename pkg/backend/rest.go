package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Query selects rows from a table.
type Query struct {
	Columns string            // select list, default "*"
	Eq      map[string]string // column = value filters
	Order   string            // column to order by
	Desc    bool
	Limit   int
}

func (q Query) values() url.Values {
	v := url.Values{}
	cols := q.Columns
	if cols == "" {
		cols = "*"
	}
	v.Set("select", cols)
	for col, val := range q.Eq {
		v.Set(col, "eq."+val)
	}
	if q.Order != "" {
		dir := ".asc"
		if q.Desc {
			dir = ".desc"
		}
		v.Set("order", q.Order+dir)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Insert adds row to table. When out is non-nil the inserted rows are
// decoded into it (a slice).
func (c *Client) Insert(ctx context.Context, table string, row any, out any) error {
	prefer := "return=minimal"
	if out != nil {
		prefer = "return=representation"
	}
	return c.do(ctx, request{
		service: "rest",
		method:  http.MethodPost,
		path:    "/rest/v1/" + table,
		body:    row,
		header:  map[string]string{"Prefer": prefer},
	}, out)
}

// Select decodes matching rows into out (a slice).
func (c *Client) Select(ctx context.Context, table string, q Query, out any) error {
	return c.do(ctx, request{
		service: "rest",
		method:  http.MethodGet,
		path:    "/rest/v1/" + table,
		query:   q.values(),
	}, out)
}

// Delete removes rows where column equals value.
func (c *Client) Delete(ctx context.Context, table, column, value string) error {
	q := url.Values{}
	q.Set(column, "eq."+value)
	return c.do(ctx, request{
		service: "rest",
		method:  http.MethodDelete,
		path:    "/rest/v1/" + table,
		query:   q,
	}, nil)
}

// RPC calls a database function and decodes its result into out.
func (c *Client) RPC(ctx context.Context, fn string, args any, out any) error {
	if args == nil {
		args = struct{}{}
	}
	return c.do(ctx, request{
		service: "rest",
		method:  http.MethodPost,
		path:    "/rest/v1/rpc/" + fn,
		body:    args,
	}, out)
}
