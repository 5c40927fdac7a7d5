// Package parallel runs data-parallel kernels over a fixed grid of rows.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers returns n if positive, otherwise the number of CPUs.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// ForRows calls fn for every row in [0, rows). Rows are split into
// contiguous ranges, one per worker. Each worker checks ctx before every row
// and stops at the first cancellation or error.
//
// fn must only write to state owned by its row.
func ForRows(ctx context.Context, rows, workers int, fn func(row int) error) error {
	if rows <= 0 {
		return ctx.Err()
	}
	workers = Workers(workers)
	if workers > rows {
		workers = rows
	}
	perWorker := (rows + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > rows {
			end = rows
		}
		if start >= end {
			break
		}
		g.Go(func() error {
			for row := start; row < end; row++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(row); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
