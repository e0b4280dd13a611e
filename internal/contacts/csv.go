package contacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ImportCSV reads `name,phone` records from r and appends the valid ones to
// the list. Malformed lines (missing fields, empty name or phone) are skipped
// rather than aborting the import. It returns the number of contacts added.
func (l *List) ImportCSV(r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	added := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return added, nil
		}
		if err != nil {
			return added, fmt.Errorf("contacts: read csv: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		name := strings.TrimSpace(record[0])
		phone := strings.TrimSpace(record[1])
		if _, err := l.Add(name, phone); err != nil {
			continue
		}
		added++
	}
}
