package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query builds a PostgREST request against one table.
type Query struct {
	client  *Client
	table   string
	columns string
	filters [][2]string
	orders  []string
	limit   int
	offset  int
	single  bool
}

// Select names the columns to return. Defaults to all.
func (q *Query) Select(columns string) *Query {
	q.columns = columns
	return q
}

// Eq filters rows where column equals value.
func (q *Query) Eq(column string, value any) *Query {
	q.filters = append(q.filters, [2]string{column, fmt.Sprintf("eq.%v", value)})
	return q
}

// Gte filters rows where column >= value.
func (q *Query) Gte(column string, value any) *Query {
	q.filters = append(q.filters, [2]string{column, fmt.Sprintf("gte.%v", value)})
	return q
}

// Lte filters rows where column <= value.
func (q *Query) Lte(column string, value any) *Query {
	q.filters = append(q.filters, [2]string{column, fmt.Sprintf("lte.%v", value)})
	return q
}

// ILike filters rows where column matches the pattern case-insensitively.
func (q *Query) ILike(column, pattern string) *Query {
	q.filters = append(q.filters, [2]string{column, "ilike." + pattern})
	return q
}

// In filters rows where column is one of values.
func (q *Query) In(column string, values ...string) *Query {
	q.filters = append(q.filters, [2]string{column, "in.(" + strings.Join(values, ",") + ")"})
	return q
}

// Order sorts by column.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// Single requests exactly one row; the response is an object, not an array.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

func (q *Query) endpoint() string {
	return q.client.baseURL + "/rest/v1/" + q.table
}

func (q *Query) params(withSelect bool) url.Values {
	params := url.Values{}
	if withSelect && q.columns != "" {
		params.Set("select", q.columns)
	}
	for _, f := range q.filters {
		params.Add(f[0], f[1])
	}
	if withSelect {
		if len(q.orders) > 0 {
			params.Set("order", strings.Join(q.orders, ","))
		}
		if q.limit > 0 {
			params.Set("limit", strconv.Itoa(q.limit))
		}
		if q.offset > 0 {
			params.Set("offset", strconv.Itoa(q.offset))
		}
	}
	return params
}

// Get runs the SELECT and decodes rows into out.
func (q *Query) Get(ctx context.Context, out any) error {
	reqURL := q.endpoint()
	if params := q.params(true); len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	if q.single {
		req.Header.Set("Accept", "application/vnd.pgrst.object+json")
	}
	return q.client.do(req, out)
}

// Insert inserts data; the created rows are decoded into out when non-nil.
func (q *Query) Insert(ctx context.Context, data, out any) error {
	return q.write(ctx, http.MethodPost, data, out, "return=representation")
}

// Upsert inserts data, merging duplicates on the conflict target.
func (q *Query) Upsert(ctx context.Context, data, out any, onConflict string) error {
	reqURL := q.endpoint()
	if onConflict != "" {
		reqURL += "?on_conflict=" + url.QueryEscape(onConflict)
	}
	return q.writeURL(ctx, http.MethodPost, reqURL, data, out,
		"resolution=merge-duplicates,return=representation")
}

// Update patches the rows matched by the filters.
func (q *Query) Update(ctx context.Context, data, out any) error {
	return q.write(ctx, http.MethodPatch, data, out, "return=representation")
}

// Delete removes the rows matched by the filters.
func (q *Query) Delete(ctx context.Context) error {
	reqURL := q.endpoint()
	if params := q.params(false); len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return err
	}
	return q.client.do(req, nil)
}

func (q *Query) write(ctx context.Context, method string, data, out any, prefer string) error {
	reqURL := q.endpoint()
	if params := q.params(false); len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	return q.writeURL(ctx, method, reqURL, data, out, prefer)
}

func (q *Query) writeURL(ctx context.Context, method, reqURL string, data, out any, prefer string) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal row data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", prefer)
	return q.client.do(req, out)
}
