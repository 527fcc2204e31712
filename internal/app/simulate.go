package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"signal-bridge/internal/regime"
)

// SimulateOptions describe a synthetic reading. Nil ratios are absent.
type SimulateOptions struct {
	BTCDominance   *float64
	ETHBTC         *float64
	AltseasonIndex *float64
	Total2T        *float64
	Force          bool
	Message        string
	DryRun         bool
}

// Reading builds the synthetic reading.
func (o SimulateOptions) Reading(now time.Time) regime.Reading {
	r := regime.Reading{AsOf: now}
	set := func(dst *decimal.NullDecimal, v *float64) {
		if v != nil {
			*dst = regime.Value(*v)
		}
	}
	set(&r.BTCDominance, o.BTCDominance)
	set(&r.ETHBTC, o.ETHBTC)
	set(&r.AltseasonIndex, o.AltseasonIndex)
	set(&r.Total2T, o.Total2T)
	return r
}

// Simulate runs the notify flow over a synthetic reading. With DryRun the
// rendered message is printed instead of sent.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	var sink regime.Sink
	if opts.DryRun {
		sink = &printSink{out: a.Out}
	}
	svc := a.newService(nil, sink)

	res := svc.EvaluateReading(ctx, opts.Reading(time.Now().UTC()), opts.Force, opts.Message)
	printSummary(a.Out, res.Summary)
	fmt.Fprintf(a.Out, "attempted=%t forced=%t notified=%t\n", res.Attempted, res.Forced, res.Notified)

	if res.Err != nil && !errors.Is(res.Err, regime.ErrNoData) {
		return fmt.Errorf("simulate: %w", res.Err)
	}
	return nil
}

type printSink struct {
	out io.Writer
}

func (p *printSink) SendText(ctx context.Context, text string) error {
	_, err := fmt.Fprintf(p.out, "--- message ---\n%s\n---------------\n", text)
	return err
}
