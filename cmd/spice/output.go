package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/pterm/pterm"
	"github.com/spiceai/spice-sql-go/rows"
)

// printTable renders up to limit rows of t, or all rows when limit is 0.
func printTable(t arrow.Table, limit int) error {
	data := tableData(t, limit)
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	if shown := int64(len(data) - 1); shown < t.NumRows() {
		pterm.Info.Printfln("%d more rows not shown", t.NumRows()-shown)
	}
	return nil
}

func tableData(t arrow.Table, limit int) [][]string {
	header := make([]string, 0, t.NumCols())
	for _, f := range t.Schema().Fields() {
		header = append(header, f.Name)
	}
	data := [][]string{header}

	tr := array.NewTableReader(t, 1024)
	defer tr.Release()

	for tr.Next() {
		rec := tr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			if limit > 0 && len(data)-1 >= limit {
				return data
			}
			row := make([]string, rec.NumCols())
			for j, col := range rec.Columns() {
				row[j] = formatValue(col, i)
			}
			data = append(data, row)
		}
	}
	return data
}

func formatValue(arr arrow.Array, i int) string {
	if arr.IsNull(i) {
		return "NULL"
	}
	switch a := arr.(type) {
	case *array.Int8:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Int16:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(a.Value(i)), 10)
	case *array.Int64:
		return strconv.FormatInt(a.Value(i), 10)
	case *array.Uint8:
		return strconv.FormatUint(uint64(a.Value(i)), 10)
	case *array.Uint16:
		return strconv.FormatUint(uint64(a.Value(i)), 10)
	case *array.Uint32:
		return strconv.FormatUint(uint64(a.Value(i)), 10)
	case *array.Uint64:
		return strconv.FormatUint(a.Value(i), 10)
	case *array.Float32:
		return strconv.FormatFloat(float64(a.Value(i)), 'g', -1, 32)
	case *array.Float64:
		return strconv.FormatFloat(a.Value(i), 'g', -1, 64)
	case *array.Boolean:
		return strconv.FormatBool(a.Value(i))
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC().Format("2006-01-02T15:04:05.999999999Z")
	case *array.Date32:
		return a.Value(i).ToTime().Format("2006-01-02")
	}
	return "<" + arr.DataType().Name() + ">"
}

// printPage renders an async result page in schema column order.
func printPage(page *rows.ResultPage) error {
	header := make([]string, 0, len(page.Schema))
	for _, c := range page.Schema {
		header = append(header, c.Name)
	}
	if len(header) == 0 && len(page.Rows) > 0 {
		for k := range page.Rows[0] {
			header = append(header, k)
		}
		sort.Strings(header)
	}
	if len(header) == 0 {
		return nil
	}

	data := [][]string{header}
	for _, r := range page.Rows {
		row := make([]string, len(header))
		for j, name := range header {
			if v, ok := r[name]; ok && v != nil {
				row[j] = fmt.Sprint(v)
			} else {
				row[j] = "NULL"
			}
		}
		data = append(data, row)
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
