package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// ExtractCSV parses CSV bytes into a single sheet. The first record is the
// header; ragged records are tolerated and padded with empty cells.
func ExtractCSV(data []byte) (*Sheet, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return &Sheet{Name: "Sheet1"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, padRow(record, len(header)))
	}

	return &Sheet{Name: "Sheet1", Header: header, Rows: rows}, nil
}

func padRow(record []string, width int) []string {
	if len(record) >= width {
		return record[:width]
	}
	padded := make([]string, width)
	copy(padded, record)
	return padded
}
