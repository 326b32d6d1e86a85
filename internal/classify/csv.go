// internal/classify/csv.go
package classify

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ReadLocatorsCSV reads locator strings from CSV input. The first column of
// each record is the locator; a header row whose first cell is "locator"
// (case-insensitive) is skipped. Blank rows are ignored.
func ReadLocatorsCSV(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var locators []string
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		value := strings.TrimSpace(record[0])
		if first {
			first = false
			if strings.EqualFold(value, "locator") {
				continue
			}
		}
		if value == "" {
			continue
		}
		locators = append(locators, value)
	}
	return locators, nil
}

// WriteResultsCSV writes classification results with a header row.
func WriteResultsCSV(w io.Writer, results []Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"locator", "label", "strategy"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, res := range results {
		record := []string{res.Locator, string(res.Label), string(res.Strategy)}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
