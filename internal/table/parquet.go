package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"
	"github.com/parquet-go/parquet-go/format"
)

// IsParquetKey reports whether key names a parquet object, compressed or not.
func IsParquetKey(key string) bool {
	return strings.HasSuffix(key, ".parquet") || strings.HasSuffix(key, ".parquet.gz")
}

// Gzipped reports whether key is a gzip wrapped object.
func Gzipped(key string) bool {
	return strings.HasSuffix(key, ".gz")
}

// ReadParquet decodes a parquet file. Timestamps without a UTC adjustment are
// taken as wall clock in loc.
func ReadParquet(r io.Reader, gz bool, loc *time.Location) (*Table, error) {
	if gz {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}
	return decode(data, loc)
}

type leaf struct {
	name      string
	timestamp bool
	utc       bool
	unit      time.Duration
}

func describe(schema *parquet.Schema) []leaf {
	paths := schema.Columns()
	leaves := make([]leaf, len(paths))
	for i, path := range paths {
		l := leaf{name: strings.Join(path, ".")}
		col, ok := schema.Lookup(path...)
		if ok {
			typ := col.Node.Type()
			lt := typ.LogicalType()
			switch {
			case lt != nil && lt.Timestamp != nil:
				l.timestamp = true
				l.utc = lt.Timestamp.IsAdjustedToUTC
				l.unit = timestampUnit(lt.Timestamp.Unit)
			case typ.Kind() == parquet.Int96:
				l.timestamp = true
				l.utc = true
			}
		}
		leaves[i] = l
	}
	return leaves
}

func timestampUnit(u format.TimeUnit) time.Duration {
	switch {
	case u.Millis != nil:
		return time.Millisecond
	case u.Micros != nil:
		return time.Microsecond
	default:
		return time.Nanosecond
	}
}

func decode(data []byte, loc *time.Location) (*Table, error) {
	if loc == nil {
		loc = time.UTC
	}

	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	reader := parquet.NewReader(f)
	defer reader.Close()

	leaves := describe(reader.Schema())
	t := &Table{Columns: make([]string, len(leaves))}
	for i, l := range leaves {
		t.Columns[i] = l.name
	}

	buf := make([]parquet.Row, 256)
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			out := make([]any, len(leaves))
			for _, v := range row {
				c := v.Column()
				if c < 0 || c >= len(leaves) {
					continue
				}
				out[c] = cell(v, leaves[c], loc)
			}
			t.Rows = append(t.Rows, out)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return t, nil
}

func cell(v parquet.Value, l leaf, loc *time.Location) any {
	if v.IsNull() {
		return nil
	}

	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		if !l.timestamp {
			return v.Int64()
		}
		ts := time.Unix(0, v.Int64()*int64(l.unit))
		if l.utc {
			return ts.In(loc)
		}
		return wallClock(ts, loc)
	case parquet.Int96:
		return int96Time(v.Int96()).In(loc)
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return nil
	}
}

// wallClock reinterprets the UTC fields of ts as a wall clock in loc.
func wallClock(ts time.Time, loc *time.Location) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), loc)
}

const julianUnixEpoch = 2440588

func int96Time(v deprecated.Int96) time.Time {
	nanos := int64(uint64(v[1])<<32 | uint64(v[0]))
	days := int64(v[2]) - julianUnixEpoch
	return time.Unix(days*86400, nanos)
}

// WriteParquet encodes t with one optional column per table column. Column
// types follow the first non-nil value; timestamps are stored as UTC
// nanoseconds.
func WriteParquet(w io.Writer, t *Table, gz bool) error {
	if gz {
		zw := gzip.NewWriter(w)
		if err := writeParquet(zw, t); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	}
	return writeParquet(w, t)
}

func columnNode(t *Table, col int) (parquet.Node, error) {
	for _, r := range t.Rows {
		switch r[col].(type) {
		case nil:
			continue
		case float64:
			return parquet.Leaf(parquet.DoubleType), nil
		case int64:
			return parquet.Int(64), nil
		case bool:
			return parquet.Leaf(parquet.BooleanType), nil
		case string:
			return parquet.String(), nil
		case time.Time:
			return parquet.Timestamp(parquet.Nanosecond), nil
		default:
			return nil, fmt.Errorf("column %s: unsupported value type %T", t.Columns[col], r[col])
		}
	}
	return parquet.String(), nil
}

func value(v any) parquet.Value {
	switch x := v.(type) {
	case float64:
		return parquet.DoubleValue(x)
	case int64:
		return parquet.Int64Value(x)
	case bool:
		return parquet.BooleanValue(x)
	case string:
		return parquet.ByteArrayValue([]byte(x))
	case time.Time:
		return parquet.Int64Value(x.UnixNano())
	default:
		return parquet.NullValue()
	}
}

func writeParquet(w io.Writer, t *Table) error {
	group := parquet.Group{}
	byName := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		node, err := columnNode(t, i)
		if err != nil {
			return err
		}
		group[c] = parquet.Optional(node)
		byName[c] = i
	}

	schema := parquet.NewSchema("table", group)
	paths := schema.Columns()
	order := make([]int, len(paths))
	for leafIdx, path := range paths {
		order[leafIdx] = byName[path[0]]
	}

	rows := make([]parquet.Row, len(t.Rows))
	for i, r := range t.Rows {
		row := make(parquet.Row, len(order))
		for leafIdx, col := range order {
			v := r[col]
			if v == nil {
				row[leafIdx] = parquet.NullValue().Level(0, 0, leafIdx)
				continue
			}
			row[leafIdx] = value(v).Level(0, 1, leafIdx)
		}
		rows[i] = row
	}

	pw := parquet.NewWriter(w, schema)
	if _, err := pw.WriteRows(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

// SortedKeys returns the parquet keys among keys in lexical order.
func SortedKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		if IsParquetKey(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
