package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"signal-bridge/internal/signal"
)

// EvaluateFile runs one alert read from path ("-" for stdin) through the
// verdict flow and prints the verdict as JSON.
func (a *App) EvaluateFile(ctx context.Context, path string, in io.Reader) error {
	var src io.Reader = in
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open alert: %w", err)
		}
		defer f.Close()
		src = f
	}

	var alert signal.TradeAlert
	if err := json.NewDecoder(io.LimitReader(src, 64<<10)).Decode(&alert); err != nil {
		return fmt.Errorf("decode alert: %w", err)
	}

	svc := a.newService(nil, nil)
	v, err := svc.HandleAlert(ctx, alert)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
