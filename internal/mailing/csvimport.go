package mailing

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ImportResult reports the outcome of a CSV subscriber import. A row is
// invalid when its email fails format validation, skipped when the email is
// valid but already subscribed to the list, imported otherwise.
type ImportResult struct {
	TotalRows     int `json:"total_rows"`
	ImportedCount int `json:"imported_count"`
	SkippedCount  int `json:"skipped_count"`
	InvalidRows   int `json:"invalid_rows"`
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether the address passes format validation.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ImportCSV reads subscriber rows from r into the list. The header row must
// contain an "email" column; "name" and "organization" are optional.
func (s *Store) ImportCSV(ctx context.Context, listID string, r io.Reader) (ImportResult, error) {
	if _, err := s.GetList(ctx, listID); err != nil {
		return ImportResult{}, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return ImportResult{}, fmt.Errorf("mailing: read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for idx, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = idx
	}
	emailIdx, ok := columns["email"]
	if !ok {
		return ImportResult{}, errors.New("mailing: csv is missing an email column")
	}

	var result ImportResult
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.TotalRows++
			result.InvalidRows++
			continue
		}
		result.TotalRows++

		email := NormalizeEmail(field(row, emailIdx))
		if !ValidEmail(email) {
			result.InvalidRows++
			continue
		}

		var name, organization string
		if idx, ok := columns["name"]; ok {
			name = field(row, idx)
		}
		if idx, ok := columns["organization"]; ok {
			organization = field(row, idx)
		}

		_, err = s.AddSubscriber(ctx, listID, email, name, organization)
		switch {
		case err == nil:
			result.ImportedCount++
		case errors.Is(err, ErrDuplicateEmail):
			result.SkippedCount++
		case errors.Is(err, ErrListNotFound):
			return result, err
		default:
			result.InvalidRows++
		}
	}

	return result, nil
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
