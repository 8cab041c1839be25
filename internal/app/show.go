package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"optionwatch/internal/storage"
)

// Show prints the most recent contract snapshots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show snapshots")
	}
	defer closeStore()

	rows, err := store.ListRecentSnapshots(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if err := writeSnapshotTable(os.Stdout, rows); err != nil {
		return err
	}

	total, err := store.CountSnapshots(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d of %d snapshots\n", len(rows), total)
	return nil
}

func writeSnapshotTable(out io.Writer, rows []storage.SnapshotRow) error {
	if len(rows) == 0 {
		fmt.Fprintln(out, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tIdentifier\tType\tStrike\tUnderlying\tChange%\tOI\tIV\tAlerted")

	for _, row := range rows {
		s := row.Snapshot
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ObservedAt.UTC().Format(time.RFC3339),
			s.Identifier,
			s.OptionType,
			s.StrikePrice,
			formatFloat(s.UnderlyingValue, 2),
			formatFloat(s.PercentChange, 2),
			formatFloat(s.OpenInterest, 0),
			formatFloat(s.ImpliedVolatility, 2),
			strconv.FormatBool(row.Alerted),
		)
	}

	return writer.Flush()
}

func formatFloat(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
