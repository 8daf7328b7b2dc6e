// Copyright ©2015 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report formats the store's aggregation views as tab-separated
// output (§4.7).
package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/kortschak/markeralign/store"
)

// fieldFormat gives the fmt verb for a column name; columns not listed
// here (taxon, marker and other string-valued columns) print with %s.
var fieldFormat = map[string]string{
	"marker_cpm":                "%.6f",
	"marker_coverage":           "%.6f",
	"marker_read_count":         "%.2f",
	"marker_avg_identity":       "%.6f",
	"cpm":                       "%.6f",
	"coverage":                  "%.6f",
	"taxon_num_reads":           "%.6f",
	"taxon_num_markers":         "%d",
	"taxon_max_reads_in_marker": "%.6f",
	"fraction_shared":           "%.6f",
	"cluster_id":                "%d",
}

func formatFor(column string) string {
	if f, ok := fieldFormat[column]; ok {
		return f
	}
	return "%s"
}

// formatCell renders one cell using the column's fixed format, coercing
// SQLite's driver-returned types (int64, float64, string, []byte, nil)
// to whatever the verb expects.
func formatCell(column string, v any) string {
	format := formatFor(column)
	switch format {
	case "%d":
		return fmt.Sprintf(format, toInt64(v))
	case "%.2f", "%.6f":
		return fmt.Sprintf(format, toFloat64(v))
	default:
		return fmt.Sprintf(format, toString(v))
	}
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		return 0
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// Write runs view against s and streams its header and data rows as
// tab-separated text to w. totalReads is only read for views whose name
// contains "cpm" or "all"; pass 0 otherwise.
func Write(w io.Writer, s *store.Store, view store.View, totalReads int) error {
	columns, rows, err := s.Report(view, totalReads)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	bw := bufio.NewWriter(w)
	if err := writeRow(bw, columns); err != nil {
		return err
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(columns[i], v)
		}
		if err := writeRow(bw, cells); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if _, err := w.WriteString("\t"); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(f); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}
