package tabular

import (
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01",
}

// FromSheet builds a column-typed Dataset from a raw sheet: per-column
// type inference over {number, string, date, boolean}, null and distinct
// counts, and up to three sample values.
func FromSheet(sheet Sheet) *Dataset {
	columns := make([]Column, len(sheet.Header))
	for i, name := range sheet.Header {
		columns[i] = inferColumn(name, i, sheet.Rows)
	}
	return &Dataset{
		Name:     sheet.Name,
		Columns:  columns,
		Rows:     sheet.Rows,
		RowCount: len(sheet.Rows),
	}
}

func inferColumn(name string, idx int, rows [][]string) Column {
	col := Column{Name: strings.TrimSpace(name), Type: TypeString}

	distinct := make(map[string]struct{})
	allNumber, allDate, allBool := true, true, true
	nonNull := 0

	for _, row := range rows {
		var cell string
		if idx < len(row) {
			cell = strings.TrimSpace(row[idx])
		}
		if cell == "" {
			col.NullCount++
			continue
		}
		nonNull++
		if _, seen := distinct[cell]; !seen {
			distinct[cell] = struct{}{}
			if len(col.Samples) < maxSampleValues {
				col.Samples = append(col.Samples, cell)
			}
		}
		if allNumber && !isNumber(cell) {
			allNumber = false
		}
		if allDate && !isDate(cell) {
			allDate = false
		}
		if allBool && !isBool(cell) {
			allBool = false
		}
	}

	col.DistinctCount = len(distinct)
	switch {
	case nonNull == 0:
		col.Type = TypeString
	case allBool:
		col.Type = TypeBoolean
	case allDate:
		col.Type = TypeDate
	case allNumber:
		col.Type = TypeNumber
	}
	return col
}

func isNumber(s string) bool {
	s = strings.ReplaceAll(s, ",", "")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}
