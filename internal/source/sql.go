// Package source implements the Source Runner (§4.D): reading an alert's
// configured source — SQL query, shell script, or externally-driven event
// — and deciding whether the alert is triggered for this tick.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/beyondessential/alertd/internal/alertdef"
	"github.com/beyondessential/alertd/internal/threshold"
)

// Result is what a Source Runner hands back to the alert evaluation loop:
// whether the alert is triggered, and the template variables the Target
// Dispatcher's rendering context should carry.
type Result struct {
	Triggered bool
	Vars      map[string]interface{}
}

// skip is the canonical not-triggered result with no template variables,
// mirroring the Rust ControlFlow::Break(()) early-exit points.
var skip = Result{Triggered: false}

// SQLRunner evaluates Sql sources against a shared connection pool.
type SQLRunner struct {
	DB *sqlx.DB
}

// Run executes source.Query bound to (not_before, interval); a query that
// rejects two arguments is retried with (not_before) alone and then with no
// arguments, so queries with up to two placeholders run. It then evaluates
// any configured numerical thresholds against the resulting rows.
func (r *SQLRunner) Run(ctx context.Context, src alertdef.Source, notBefore time.Time, interval time.Duration, wasTriggered bool) (Result, error) {
	rows, err := r.query(ctx, src.Query, notBefore, interval)
	if err != nil {
		return Result{}, fmt.Errorf("querying database: %w", err)
	}
	if len(rows) == 0 {
		return skip, nil
	}

	triggered := true
	if len(src.Thresholds) > 0 {
		thresholdRows := make([]threshold.Row, len(rows))
		for i, row := range rows {
			thresholdRows[i] = threshold.Row(row)
		}
		triggered, err = threshold.Evaluate(thresholdRows, src.Thresholds, wasTriggered)
		if err != nil {
			return Result{}, err
		}
	}
	if !triggered {
		return skip, nil
	}

	return Result{Triggered: true, Vars: map[string]interface{}{"rows": rows}}, nil
}

func (r *SQLRunner) query(ctx context.Context, query string, notBefore time.Time, interval time.Duration) ([]map[string]interface{}, error) {
	stmt, err := r.DB.PreparexContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryxContext(ctx, notBefore, interval)
	if err != nil {
		// Fall back to a single-parameter call for queries with exactly one
		// placeholder, then to no parameters for queries with none.
		rows, err = stmt.QueryxContext(ctx, notBefore)
		if err != nil {
			rows, err = stmt.QueryxContext(ctx)
			if err != nil {
				return nil, err
			}
		}
	}
	defer rows.Close()

	var out []map[string]interface{}
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
