package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Direction names which pipeline a record goes through.
type Direction string

const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
)

// ParseDirection accepts request/outbound and response/inbound. Empty
// means request.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "request", "outbound":
		return DirectionRequest, true
	case "response", "inbound":
		return DirectionResponse, true
	}
	return "", false
}

// Record is one payload from the input dataset
type Record struct {
	ID        string `parquet:"id" json:"id"`
	Service   string `parquet:"service" json:"service"`
	Direction string `parquet:"direction" json:"direction"`
	Body      string `parquet:"body" json:"body"`
}

// Output is one line of the JSONL result file.
type Output struct {
	Line              int64  `json:"line"`
	ID                string `json:"id,omitempty"`
	Service           string `json:"service"`
	Direction         string `json:"direction"`
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
	Kind              string `json:"kind"`
	Body              string `json:"body"`
	Substitutions     int    `json:"substitutions"`
	Redactions        int    `json:"redactions"`
	KeysFound         int    `json:"keys_found"`
	KeysRedacted      int    `json:"keys_redacted"`
	NeedsConfirmation bool   `json:"needs_confirmation,omitempty"`
}

// Result summarises a run.
type Result struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Substitutions   int64         `json:"substitutions"`
	Redactions      int64         `json:"redactions"`
	KeysFound       int64         `json:"keys_found"`
	Held            int64         `json:"held_for_confirmation"`
	Duration        time.Duration `json:"duration"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains batch processing configuration
type Config struct {
	Workers        int
	QueueSize      int
	ProgressReport int64
	// Decision answers warn-first confirmations for every record.
	Decision string
	// MaxErrors caps how many error messages Result keeps.
	MaxErrors int
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatCSV
	}
}
