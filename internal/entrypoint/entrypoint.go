// Package entrypoint reads and writes the entry-point feed: the persisted
// output of the signal stage that the backtest consumes.
package entrypoint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/strategy"
	"github.com/amirphl/option-sim/internal/table"
	"github.com/amirphl/option-sim/internal/utils"
)

var ErrMissingColumns = errors.New("entry feed is missing required columns")

const TimeLayout = "2006-01-02 15:04:05"

type Entry struct {
	Type       string    `json:"type"`
	ClosePrice float64   `json:"close_price"`
	Time       time.Time `json:"time"`
}

// OptionType reads the contract type out of free text such as "BUY CE".
// An explicit CE/PE (or CALL/PUT) word wins over the BUY/SELL wording.
func OptionType(text string) (option.Type, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r < 'a' || r > 'z'
	})

	var side option.Type
	for _, w := range words {
		switch w {
		case "ce", "call":
			return option.Call, true
		case "pe", "put":
			return option.Put, true
		case "buy":
			side = option.Call
		case "sell":
			side = option.Put
		}
	}
	return side, side != ""
}

// FromSignal builds the feed row for a detected signal. Signals without an
// entry bar produce no row.
func FromSignal(sig strategy.Signal) (Entry, bool) {
	if !sig.HasEntry() {
		return Entry{}, false
	}
	typ, ok := option.TypeFor(sig.Direction)
	if !ok {
		return Entry{}, false
	}
	return Entry{Type: "BUY " + string(typ), ClosePrice: sig.EntryPrice, Time: sig.EntryTime}, true
}

// Requests converts entries to strike planning input, ignoring rows whose
// type cannot be read.
func Requests(entries []Entry) []option.Request {
	log := utils.Component("entrypoint")
	out := make([]option.Request, 0, len(entries))
	for _, e := range entries {
		typ, ok := OptionType(e.Type)
		if !ok {
			log.Warn().Str("type", e.Type).Time("time", e.Time).Msg("ignoring entry with unknown type")
			continue
		}
		out = append(out, option.Request{Type: typ, Price: e.ClosePrice, Time: e.Time})
	}
	return out
}

func isParquet(path string) bool {
	return table.IsParquetKey(filepath.Base(path))
}

// Read loads a CSV or parquet feed. Rows with an unreadable price or time are
// skipped with a warning.
func Read(path string, loc *time.Location) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open entry feed: %w", err)
	}
	defer f.Close()

	var tbl *table.Table
	if isParquet(path) {
		tbl, err = table.ReadParquet(f, table.Gzipped(path), loc)
	} else {
		tbl, err = readCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry feed %s: %w", path, err)
	}
	return FromTable(tbl, loc)
}

func readCSV(r io.Reader) (*table.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return table.New(), nil
	}

	tbl := table.New(records[0]...)
	for _, rec := range records[1:] {
		row := make([]any, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		tbl.Append(row...)
	}
	return tbl, nil
}

// FromTable extracts entries from a table with Type, ClosePrice and Time
// columns.
func FromTable(tbl *table.Table, loc *time.Location) ([]Entry, error) {
	ti, pi, tsi := tbl.Col("Type"), tbl.Col("ClosePrice"), tbl.Col("Time")
	if ti < 0 || pi < 0 || tsi < 0 {
		return nil, fmt.Errorf("%w: have %v", ErrMissingColumns, tbl.Columns)
	}

	log := utils.Component("entrypoint")
	var out []Entry
	for i, r := range tbl.Rows {
		price, ok := table.AsFloat(r[pi])
		if !ok {
			log.Warn().Int("row", i).Interface("close_price", r[pi]).Msg("skipping entry with invalid close price")
			continue
		}
		ts, ok := table.AsTime(r[tsi], loc)
		if !ok {
			log.Warn().Int("row", i).Interface("time", r[tsi]).Msg("skipping entry with invalid time")
			continue
		}
		out = append(out, Entry{Type: table.AsString(r[ti]), ClosePrice: price, Time: ts})
	}
	return out, nil
}

// ToTable renders entries with the feed's column names.
func ToTable(entries []Entry) *table.Table {
	tbl := table.New("Type", "ClosePrice", "Time")
	for _, e := range entries {
		tbl.Append(e.Type, e.ClosePrice, e.Time)
	}
	return tbl
}

// Write stores entries as CSV, or parquet when path says so.
func Write(path string, entries []Entry) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create entry feed: %w", err)
	}
	defer f.Close()

	if isParquet(path) {
		if err := table.WriteParquet(f, ToTable(entries), table.Gzipped(path)); err != nil {
			return err
		}
		return f.Close()
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Type", "ClosePrice", "Time"}); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{e.Type, strconv.FormatFloat(e.ClosePrice, 'f', -1, 64), e.Time.Format(TimeLayout)}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
