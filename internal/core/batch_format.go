package core

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

type BatchFormat string

const (
	BatchFormatCSV   BatchFormat = "csv"
	BatchFormatJSONL BatchFormat = "jsonl"
)

// Lines beyond this are rejected rather than truncated so a single corrupt
// record cannot consume unbounded memory.
const maxBatchLineBytes = 1 << 20

func DetectBatchFormat(key string) (BatchFormat, error) {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".csv":
		return BatchFormatCSV, nil
	case ".jsonl", ".ndjson":
		return BatchFormatJSONL, nil
	default:
		return "", fmt.Errorf("unsupported batch file extension on %q, expected .csv or .jsonl", key)
	}
}

// ReadBatchRecords parses every text record from a batch source file.
// For CSV the header must contain a "text" column; for JSONL each line is
// an object with a "text" field. Record order matches file order, which is
// what batch tasks use to address their line ranges.
func ReadBatchRecords(r io.Reader, format BatchFormat) ([]string, error) {
	switch format {
	case BatchFormatCSV:
		return readCSVRecords(r)
	case BatchFormatJSONL:
		return readJSONLRecords(r)
	default:
		return nil, fmt.Errorf("unknown batch format %q", format)
	}
}

func readCSVRecords(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	textCol := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), "text") {
			textCol = i
			break
		}
	}
	if textCol < 0 {
		return nil, fmt.Errorf("csv header has no \"text\" column")
	}

	var texts []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record %d: %w", len(texts)+1, err)
		}
		if textCol >= len(record) {
			return nil, fmt.Errorf("csv record %d has no text column", len(texts)+1)
		}
		texts = append(texts, record[textCol])
	}
	return texts, nil
}

func readJSONLRecords(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxBatchLineBytes)

	var texts []string
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var record struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("parse jsonl line %d: %w", line, err)
		}
		texts = append(texts, record.Text)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return texts, nil
}
