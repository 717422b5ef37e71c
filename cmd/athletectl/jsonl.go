package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"dualstore/internal/domain/record"
	applog "dualstore/internal/platform/log"
)

const maxLineBytes = 4 << 20

// InsertSummary insert 命令的输出
type InsertSummary struct {
	Batches         int     `json:"batches"`
	Inserted        int     `json:"inserted"`
	DocumentStoreMs float64 `json:"document_store_ms"`
	SearchEngineMs  float64 `json:"search_engine_ms"`
	FailedBatch     int     `json:"failed_batch,omitempty"`
	FailedFirstLine int     `json:"failed_first_line,omitempty"`
}

// readBatches 逐行解析 JSONL，攒满 size 条回调一次 fn；firstLine 为该批第一条的行号
func readBatches(r io.Reader, size int, fn func(batch []record.Document, firstLine int) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	batch := make([]record.Document, 0, size)
	first, line := 0, 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var doc record.Document
		if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
			return fmt.Errorf("%w: line %d: not a JSON object", record.ErrInvalidArgument, line)
		}
		if len(batch) == 0 {
			first = line
		}
		batch = append(batch, doc)
		if len(batch) == size {
			if err := fn(batch, first); err != nil {
				return err
			}
			batch = make([]record.Document, 0, size)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read line %d: %w", line+1, err)
	}
	if len(batch) > 0 {
		return fn(batch, first)
	}
	return nil
}

func insertJSONL(ctx context.Context, svc Service, r io.Reader, size int) (*InsertSummary, error) {
	summary := &InsertSummary{}
	err := readBatches(r, size, func(batch []record.Document, firstLine int) error {
		summary.Batches++
		dual, err := svc.Insert(ctx, batch)
		if dual != nil {
			if dual.DocumentStore != nil {
				summary.DocumentStoreMs += dual.DocumentStore.ElapsedMs
			}
			if dual.SearchEngine != nil {
				summary.SearchEngineMs += dual.SearchEngine.ElapsedMs
			}
		}
		if err != nil {
			summary.FailedBatch = summary.Batches
			summary.FailedFirstLine = firstLine
			return fmt.Errorf("batch %d (from line %d): %w", summary.Batches, firstLine, err)
		}
		summary.Inserted += len(batch)
		applog.Info("[athletectl] Batch inserted", "batch", summary.Batches, "records", len(batch))
		return nil
	})
	return summary, err
}
