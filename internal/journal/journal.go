package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"poolledger/internal/model"
)

// Journal appends applied operations to a JSONL file. Sequence numbers are
// assigned on append and resume from the last line of an existing file.
type Journal struct {
	path string

	mu  sync.Mutex
	seq uint64
}

// Open prepares a journal at path, resuming the sequence from any existing
// records.
func Open(path string) (*Journal, error) {
	j := &Journal{path: path}

	records, err := ReadAll(path)
	if err != nil {
		if os.IsNotExist(err) {
			return j, nil
		}
		return nil, err
	}
	if len(records) > 0 {
		j.seq = records[len(records)-1].Seq
	}
	return j, nil
}

// Append assigns the next sequence number and writes the record as one JSON
// line. The returned record carries the assigned sequence.
func (j *Journal) Append(record model.OperationRecord) (model.OperationRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return model.OperationRecord{}, fmt.Errorf("create journal dir: %w", err)
		}
	}

	record.Seq = j.seq + 1

	line, err := json.Marshal(record)
	if err != nil {
		return model.OperationRecord{}, fmt.Errorf("marshal operation: %w", err)
	}

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return model.OperationRecord{}, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return model.OperationRecord{}, fmt.Errorf("write operation: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return model.OperationRecord{}, fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return model.OperationRecord{}, fmt.Errorf("flush journal: %w", err)
	}

	j.seq = record.Seq
	return record, nil
}

// ReadAll loads every operation record from a journal file in order.
func ReadAll(path string) ([]model.OperationRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var records []model.OperationRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var record model.OperationRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("parse journal line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return records, nil
}
