// Package batchio reads batch input files and serializes scored results, in
// the tabular shape the review team exchanges.
package batchio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/talentops/cdd-analyzer/internal/scoring"
)

// Column order of the result artifact. Fixed: downstream sheets rely on it.
var resultHeader = []string{
	"link",
	"score",
	"summary",
	"tag_primary",
	"contact_tag_primary",
	"tag_secondary",
	"contact_tag_secondary",
}

// ReadLinks parses a CSV of paper links (one per row, first column) into
// densely indexed batch items. A leading "link" header row is skipped, as
// are blank rows.
func ReadLinks(r io.Reader) ([]scoring.Item, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	items := make([]scoring.Item, 0)
	first := true

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading links file: %w", err)
		}

		if len(record) == 0 {
			continue
		}

		link := strings.TrimSpace(record[0])

		if first {
			first = false
			if strings.EqualFold(link, "link") {
				continue
			}
		}

		if link == "" {
			continue
		}

		items = append(items, scoring.Item{Index: len(items), Link: link})
	}

	if len(items) == 0 {
		return nil, errors.New("links file contains no links")
	}

	return items, nil
}

// WriteResults serializes the result map in index order with the fixed
// column layout. Failed rows keep an empty score cell.
func WriteResults(w io.Writer, results map[int]scoring.Result) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(resultHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i := 0; i < len(results); i++ {
		result, ok := results[i]
		if !ok {
			return fmt.Errorf("result map is missing index %d", i)
		}

		score := ""
		if result.Score != nil {
			score = strconv.FormatFloat(*result.Score, 'f', -1, 64)
		}

		row := []string{
			result.Link,
			score,
			result.Summary,
			result.TagPrimary,
			result.ContactPrimary,
			result.TagSecondary,
			result.ContactSecondary,
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
