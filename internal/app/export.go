package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"optionwatch/internal/storage"
)

// Export renders one contract's percent-change history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Identifier == "" {
		return errors.New("--identifier must be provided")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rows, err := store.ListSnapshotsForIdentifier(ctx, opts.Identifier, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Str("identifier", opts.Identifier).Msg("no snapshots found for export window")
		return nil
	}

	downsampled := downsampleRows(rows, opts.MaxPoints)
	a.Logger.Info().
		Str("identifier", opts.Identifier).
		Int("total", len(rows)).
		Int("exported", len(downsampled)).
		Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSnapshotsPNG(opts.PNGPath, opts.Identifier, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRows(rows []storage.SnapshotRow, max int) []storage.SnapshotRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]storage.SnapshotRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeSnapshotsCSV(path string, rows []storage.SnapshotRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"observed_at", "identifier", "option_type", "strike_price", "underlying_value", "percent_change", "open_interest", "change_in_open_interest", "implied_volatility", "last_price", "alerted"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		s := row.Snapshot
		record := []string{
			s.ObservedAt.UTC().Format(time.RFC3339),
			s.Identifier,
			string(s.OptionType),
			strconv.FormatInt(s.StrikePrice, 10),
			formatFloat(s.UnderlyingValue, 2),
			formatFloat(s.PercentChange, 2),
			formatFloat(s.OpenInterest, 0),
			formatFloat(s.ChangeInOpenInterest, 0),
			formatFloat(s.ImpliedVolatility, 2),
			formatFloat(s.LastPrice, 2),
			strconv.FormatBool(row.Alerted),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSnapshotsPNG(path, identifier string, rows []storage.SnapshotRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	change := make([]float64, len(rows))
	underlying := make([]float64, len(rows))

	for i, row := range rows {
		x[i] = row.Snapshot.ObservedAt
		change[i] = row.Snapshot.PercentChange
		underlying[i] = row.Snapshot.UnderlyingValue
	}

	formatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  identifier,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Percent change (%)",
			ValueFormatter: formatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Underlying",
			ValueFormatter: formatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Percent change",
				XValues: x,
				YValues: change,
			},
			chart.TimeSeries{
				Name:    "Underlying",
				XValues: x,
				YValues: underlying,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
