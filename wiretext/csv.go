// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package wiretext

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// WriteCSVRecords renders header followed by rows as CSV, quoting as needed.
// encoding/csv already quotes a field whenever it contains a comma, quote,
// or newline, which is the quoting the tree and log formats require for
// names.
func WriteCSVRecords(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if header != nil {
		if err := w.Write(header); err != nil {
			return nil, fmt.Errorf("wiretext: write csv header: %w", err)
		}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("wiretext: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("wiretext: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadCSVRecords parses CSV body bytes, returning the header row (if any,
// when expectHeader is true) and the remaining rows.
func ReadCSVRecords(body []byte, expectHeader bool) (header []string, rows [][]string, err error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("wiretext: parse csv: %w", err)
	}
	if expectHeader && len(all) > 0 {
		return all[0], all[1:], nil
	}
	return nil, all, nil
}
