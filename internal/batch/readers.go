package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/parquet-go"
)

// emitFunc receives each record read. Returning an error stops reading.
type emitFunc func(Record) error

// readCSV reads a CSV file with a header row naming its columns. The body
// column is required; id, service and direction are optional.
func readCSV(r io.Reader, emit emitFunc) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["body"]; !ok {
		return fmt.Errorf("CSV header has no body column: %v", header)
	}

	field := func(row []string, name string) string {
		if i, ok := cols[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV record: %w", err)
		}
		rec := Record{
			ID:        strings.TrimSpace(field(row, "id")),
			Service:   strings.TrimSpace(field(row, "service")),
			Direction: strings.TrimSpace(field(row, "direction")),
			Body:      field(row, "body"),
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}

// readParquet reads Record rows from a Parquet file.
func readParquet(file *os.File, emit emitFunc) error {
	reader := parquet.NewReader(file)
	defer reader.Close()

	for {
		var rec Record
		err := reader.Read(&rec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read Parquet record: %w", err)
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}

// readJSONL reads one JSON object per line.
func readJSONL(r io.Reader, emit emitFunc) error {
	decoder := json.NewDecoder(r)
	for {
		var rec Record
		err := decoder.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read JSON record: %w", err)
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
}
