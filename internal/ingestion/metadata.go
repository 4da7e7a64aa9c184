package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// MetadataRecord is one typed row of the operator-supplied properties table.
// FileName, X and Y are mandatory; the rest are optional.
type MetadataRecord struct {
	Floor      *int
	Title      string
	FileName   string
	X          float64
	Y          float64
	Date       *time.Time
	SurveyName string
}

// defaultSurveyDate is stored when a row carries no date.
var defaultSurveyDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// ParseMetadataFile reads the properties CSV from disk.
func ParseMetadataFile(path string) ([]MetadataRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open metadata file: %v", ErrMetadataInvalid, err)
	}
	defer f.Close()
	return ParseMetadata(f)
}

// ParseMetadata parses the delimited properties table. The header row must
// name at least fileName, x and y; floor, title, date and survey_name are
// recognised when present, unknown columns are ignored.
func ParseMetadata(r io.Reader) ([]MetadataRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: empty table", ErrMetadataInvalid)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	for _, required := range []string{"fileName", "x", "y"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing required column %q", ErrMetadataInvalid, required)
		}
	}

	var records []MetadataRecord
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: row %d unreadable: %v", ErrMetadataInvalid, line, err)
		}

		rec, err := parseRow(row, cols, line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: table has no data rows", ErrMetadataInvalid)
	}

	return records, nil
}

func parseRow(row []string, cols map[string]int, line int) (MetadataRecord, error) {
	var rec MetadataRecord

	cell := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	rec.FileName = cell("fileName")
	if rec.FileName == "" {
		return rec, fmt.Errorf("%w: row %d missing fileName", ErrMetadataInvalid, line)
	}

	x, err := strconv.ParseFloat(cell("x"), 64)
	if err != nil {
		return rec, fmt.Errorf("%w: row %d has invalid x %q", ErrMetadataInvalid, line, cell("x"))
	}
	y, err := strconv.ParseFloat(cell("y"), 64)
	if err != nil {
		return rec, fmt.Errorf("%w: row %d has invalid y %q", ErrMetadataInvalid, line, cell("y"))
	}
	rec.X = x
	rec.Y = y

	rec.Title = cell("title")
	rec.SurveyName = cell("survey_name")

	if floorStr := cell("floor"); floorStr != "" {
		floor, err := strconv.Atoi(floorStr)
		if err != nil {
			return rec, fmt.Errorf("%w: row %d has invalid floor %q", ErrMetadataInvalid, line, floorStr)
		}
		if floor < 0 {
			return rec, fmt.Errorf("%w: row %d has negative floor %d", ErrMetadataInvalid, line, floor)
		}
		rec.Floor = &floor
	}

	if dateStr := cell("date"); dateStr != "" {
		date, err := parseSurveyDate(dateStr)
		if err != nil {
			return rec, fmt.Errorf("%w: row %d has invalid date %q", ErrMetadataInvalid, line, dateStr)
		}
		rec.Date = &date
	}

	return rec, nil
}

// parseSurveyDate handles the table's day/month/year dates by swapping the
// first two components into month/day/year order before parsing. The swap
// mirrors how operators have always filled the table; changing it would
// silently reinterpret existing spreadsheets.
func parseSurveyDate(s string) (time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("expected dd/mm/yyyy, got %q", s)
	}
	reordered := strings.Join([]string{parts[1], parts[0], parts[2]}, "/")
	return time.Parse("1/2/2006", reordered)
}
