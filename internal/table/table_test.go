package table

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

func sampleTable() *Table {
	base := time.Date(2023, 12, 26, 9, 15, 0, 0, ist)
	t := New("Datetime", "Open", "High", "Low", "lastPrice", "Symbol", "Strike")
	t.Append(base.Add(time.Minute), 101.0, 103.0, 100.0, 102.0, "NIFTY23DEC21400CE", int64(21400))
	t.Append(base, 100.0, 102.0, 99.0, 101.0, "NIFTY23DEC21400CE", int64(21400))
	t.Append(base, 555.0, 555.0, 555.0, 555.0, "NIFTY23DEC21400CE", int64(21400))
	t.Append(nil, 1.0, 1.0, 1.0, 1.0, "NIFTY23DEC21400CE", int64(21400))
	return t
}

func TestTable_Lookup(t *testing.T) {
	tbl := sampleTable()
	assert.Equal(t, 0, tbl.Col("datetime"))
	assert.Equal(t, 4, tbl.FirstCol("close", "lastprice"))
	assert.Equal(t, -1, tbl.Col("expiry"))
	assert.True(t, tbl.IsText(5))
	assert.False(t, tbl.IsText(6))
}

func TestTable_FilterIsPure(t *testing.T) {
	tbl := sampleTable()
	sub := tbl.Filter(func(r []any) bool { return r[0] != nil })
	assert.Equal(t, 3, sub.Len())
	assert.Equal(t, 4, tbl.Len())
}

func TestToCandles(t *testing.T) {
	candles, err := ToCandles(sampleTable(), ist)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 101.0, candles[0].Close, "lastPrice is read as close")
	assert.Equal(t, "NIFTY23DEC21400CE", candles[0].Symbol)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))

	_, err = ToCandles(New("open", "high", "low", "close"), ist)
	assert.ErrorIs(t, err, ErrNoDatetimeColumn)

	_, err = ToCandles(New("datetime", "open", "high", "close"), ist)
	assert.ErrorIs(t, err, ErrMissingOHLC)
}

func TestToCandles_TextAndEpochTimes(t *testing.T) {
	tbl := New("timestamp", "o", "h", "l", "c")
	tbl.Append("2023-12-26 09:15:00", 1.0, 2.0, 0.5, 1.5)
	tbl.Append(time.Date(2023, 12, 26, 3, 46, 0, 0, time.UTC).UnixMilli(), 1.0, 2.0, 0.5, 1.5)

	candles, err := ToCandles(tbl, ist)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2023, 12, 26, 9, 15, 0, 0, ist), candles[0].Timestamp)
	assert.True(t, time.Date(2023, 12, 26, 9, 16, 0, 0, ist).Equal(candles[1].Timestamp))
}

func TestParquetRoundTrip(t *testing.T) {
	for _, gz := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, WriteParquet(&buf, sampleTable(), gz))

		got, err := ReadParquet(&buf, gz, ist)
		require.NoError(t, err)
		require.Equal(t, 4, got.Len())

		candles, err := ToCandles(got, ist)
		require.NoError(t, err)
		require.Len(t, candles, 2)
		assert.True(t, time.Date(2023, 12, 26, 9, 15, 0, 0, ist).Equal(candles[0].Timestamp))
		assert.Equal(t, 102.0, candles[1].Close)

		strike := got.Col("strike")
		require.GreaterOrEqual(t, strike, 0)
		assert.Equal(t, int64(21400), got.Rows[0][strike])
	}
}

func TestReadParquet_Corrupt(t *testing.T) {
	_, err := ReadParquet(bytes.NewReader([]byte("not parquet")), false, ist)
	assert.Error(t, err)
}

func TestSortedKeys(t *testing.T) {
	keys := []string{"b/21400CE.parquet.gz", "a/readme.txt", "a/21400PE.parquet"}
	assert.Equal(t, []string{"a/21400PE.parquet", "b/21400CE.parquet.gz"}, SortedKeys(keys))
}
