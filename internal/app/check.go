package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"signal-bridge/internal/regime"
)

// CheckOnce fetches a live reading and prints the evaluation without
// notifying.
func (a *App) CheckOnce(ctx context.Context) error {
	svc := a.newService(nil, nil)
	summary, err := svc.CheckRegime(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("reading incomplete")
		fmt.Fprintf(a.Out, "source errors: %s\n", sanitizeInline(err.Error()))
	}
	printSummary(a.Out, summary)
	return nil
}

func printSummary(out io.Writer, s regime.Summary) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Rule\tValue\tOp\tThreshold\tResult")
	for _, c := range s.Checks {
		value, result := "n/a", "skipped"
		if c.Present() {
			value = c.Value.Decimal.String()
			result = "FAIL"
			if c.Pass {
				result = "OK"
			}
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", c.Rule.Label(), value, c.Comparison.Operator(), c.Threshold.String(), result)
	}
	writer.Flush()

	asOf := "-"
	if !s.AsOf.IsZero() {
		asOf = s.AsOf.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(out, "as of %s: %d/%d green, altseason=%t\n", asOf, s.Greens, s.Present, s.IsAltseason)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", "; ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
