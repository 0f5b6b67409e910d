package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/option-sim/internal/option"
	"github.com/amirphl/option-sim/internal/simulate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Skip records a candidate that produced no simulation record.
type Skip struct {
	ID        option.Identifier
	EntryTime time.Time
	Reason    string
	Err       error
}

type skipRow struct {
	Strike    int         `json:"strike"`
	Type      option.Type `json:"type"`
	Expiry    string      `json:"expiry"`
	EntryTime time.Time   `json:"entry_time"`
	Reason    string      `json:"reason"`
	Error     string      `json:"error,omitempty"`
}

func (s Skip) MarshalJSON() ([]byte, error) {
	return json.Marshal(skipRow{
		Strike:    s.ID.Strike,
		Type:      s.ID.Type,
		Expiry:    s.ID.ExpiryString(),
		EntryTime: s.EntryTime,
		Reason:    s.Reason,
		Error:     errString(s.Err),
	})
}

// ResultSet holds every record and skip of one run.
type ResultSet struct {
	RunID      uuid.UUID         `json:"run_id"`
	Expiry     string            `json:"expiry"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Counts     map[string]int    `json:"counts"`
	WinRate    float64           `json:"win_rate"`
	Skipped    []Skip            `json:"skipped"`
	Records    []simulate.Record `json:"records"`
}

func newResultSet(expiry string) *ResultSet {
	return &ResultSet{
		RunID:   uuid.New(),
		Expiry:  expiry,
		Counts:  map[string]int{},
		Skipped: []Skip{},
		Records: []simulate.Record{},
	}
}

func (rs *ResultSet) add(rec simulate.Record) {
	rs.Records = append(rs.Records, rec)
}

func (rs *ResultSet) skip(c option.Candidate, reason string, err error) {
	rs.Skipped = append(rs.Skipped, Skip{ID: c.ID, EntryTime: c.EntryTime, Reason: reason, Err: err})
}

// finish orders records and skips by strike, type and time, and fills the
// outcome counts.
func (rs *ResultSet) finish() {
	sort.SliceStable(rs.Records, func(i, j int) bool {
		a, b := rs.Records[i], rs.Records[j]
		if a.ID.Less(b.ID) || b.ID.Less(a.ID) {
			return a.ID.Less(b.ID)
		}
		return a.SignalTime.Before(b.SignalTime)
	})
	sort.SliceStable(rs.Skipped, func(i, j int) bool {
		a, b := rs.Skipped[i], rs.Skipped[j]
		if a.ID.Less(b.ID) || b.ID.Less(a.ID) {
			return a.ID.Less(b.ID)
		}
		return a.EntryTime.Before(b.EntryTime)
	})

	for _, o := range []simulate.Outcome{simulate.OutcomeTarget, simulate.OutcomeStop, simulate.OutcomeNone} {
		rs.Counts[string(o)] = 0
	}
	for _, rec := range rs.Records {
		rs.Counts[string(rec.Outcome)]++
	}

	decided := rs.Counts[string(simulate.OutcomeTarget)] + rs.Counts[string(simulate.OutcomeStop)]
	if decided > 0 {
		rs.WinRate = float64(rs.Counts[string(simulate.OutcomeTarget)]) / float64(decided)
	}
}

var csvHeader = []string{
	"strike", "type", "expiry", "day", "signal_time", "buy_candle_ts",
	"buy_price", "target_price", "stop_price", "outcome", "hit_time",
}

func formatPrice(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Rows renders the records as CSV rows, header first. Times are RFC3339 in loc.
func (rs *ResultSet) Rows(loc *time.Location) [][]string {
	rows := [][]string{csvHeader}
	for _, rec := range rs.Records {
		hit := ""
		if rec.HitTime != nil {
			hit = rec.HitTime.In(loc).Format(time.RFC3339)
		}
		rows = append(rows, []string{
			strconv.Itoa(rec.ID.Strike),
			string(rec.ID.Type),
			rec.ID.ExpiryString(),
			rec.Day,
			rec.SignalTime.In(loc).Format(time.RFC3339),
			rec.BuyCandleTS.In(loc).Format(time.RFC3339),
			formatPrice(rec.BuyPrice),
			formatPrice(rec.TargetPrice),
			formatPrice(rec.StopPrice),
			string(rec.Outcome),
			hit,
		})
	}
	return rows
}

func create(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return os.Create(path)
}

// WriteCSV saves the result table.
func (rs *ResultSet) WriteCSV(path string, loc *time.Location) error {
	f, err := create(path)
	if err != nil {
		return fmt.Errorf("failed to create result file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rs.Rows(loc)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WriteSummary saves the run as JSON.
func (rs *ResultSet) WriteSummary(path string) error {
	f, err := create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Message is the human readable run summary sent to notifiers.
func (rs *ResultSet) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backtest %s (expiry %s)\n", rs.RunID, rs.Expiry)
	fmt.Fprintf(&b, "Records=%d Target=%d StopLoss=%d None=%d WinRate=%.2f%%\n",
		len(rs.Records),
		rs.Counts[string(simulate.OutcomeTarget)],
		rs.Counts[string(simulate.OutcomeStop)],
		rs.Counts[string(simulate.OutcomeNone)],
		rs.WinRate*100)

	reasons := map[string]int{}
	for _, s := range rs.Skipped {
		reasons[s.Reason]++
	}
	if len(reasons) > 0 {
		keys := make([]string, 0, len(reasons))
		for k := range reasons {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(&b, "Skipped=%d", len(rs.Skipped))
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%d", k, reasons[k])
		}
		b.WriteString("\n")
	}
	return b.String()
}
