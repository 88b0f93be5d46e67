package restdb

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/valyala/fasthttp"
)

// Query is a PostgREST request under construction. Filters translate to col=eq.value style
// query arguments.
type Query struct {
	c       *Client
	table   string
	columns string
	filters [][2]string
	order   []string
	limit   int
}

func (q *Query) Columns(cols string) *Query {
	q.columns = cols
	return q
}

func (q *Query) Eq(col string, v any) *Query {
	q.filters = append(q.filters, [2]string{col, "eq." + fmt.Sprint(v)})
	return q
}

// Or adds a PostgREST or=(...) filter, e.g. "white_player_id.eq.u1,black_player_id.eq.u1".
func (q *Query) Or(expr string) *Query {
	q.filters = append(q.filters, [2]string{"or", "(" + expr + ")"})
	return q
}

func (q *Query) Order(col string, asc bool) *Query {
	dir := "desc"
	if asc {
		dir = "asc"
	}
	q.order = append(q.order, col+"."+dir)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) readArgs() [][2]string {
	cols := q.columns
	if cols == "" {
		cols = "*"
	}
	args := [][2]string{{"select", cols}}
	args = append(args, q.filters...)
	for _, o := range q.order {
		args = append(args, [2]string{"order", o})
	}
	if q.limit > 0 {
		args = append(args, [2]string{"limit", strconv.Itoa(q.limit)})
	}
	return args
}

// Select decodes all matching rows into out, which must point to a slice.
func (q *Query) Select(ctx context.Context, out any) error {
	return q.c.do(ctx, request{method: fasthttp.MethodGet, table: q.table, args: q.readArgs(), retry: true}, out)
}

// Single decodes exactly one row into out, or returns ErrNotFound.
func (q *Query) Single(ctx context.Context, out any) error {
	q.limit = 1
	var rows []json.RawMessage
	if err := q.Select(ctx, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(rows[0], out); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// Insert writes rows and returns the stored representation into out when it is non-nil.
func (q *Query) Insert(ctx context.Context, rows any, out any) error {
	return q.c.do(ctx, request{
		method: fasthttp.MethodPost,
		table:  q.table,
		prefer: []string{returnPref(out)},
		body:   asArray(rows),
	}, out)
}

// Upsert inserts rows, merging on the onConflict column list.
func (q *Query) Upsert(ctx context.Context, rows any, onConflict string, out any) error {
	var args [][2]string
	if onConflict != "" {
		args = append(args, [2]string{"on_conflict", onConflict})
	}
	return q.c.do(ctx, request{
		method: fasthttp.MethodPost,
		table:  q.table,
		args:   args,
		prefer: []string{"resolution=merge-duplicates", returnPref(out)},
		body:   asArray(rows),
		retry:  true,
	}, out)
}

// Update patches every row matching the filters.
func (q *Query) Update(ctx context.Context, patch any) error {
	return q.c.do(ctx, request{
		method: fasthttp.MethodPatch,
		table:  q.table,
		args:   q.filters,
		prefer: []string{"return=minimal"},
		body:   patch,
	}, nil)
}

func returnPref(out any) string {
	if out == nil {
		return "return=minimal"
	}
	return "return=representation"
}

func asArray(rows any) any {
	v := reflect.ValueOf(rows)
	for v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		return rows
	}
	return []any{rows}
}
