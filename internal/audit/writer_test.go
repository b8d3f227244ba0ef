package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open audit file error: %v", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan audit file error: %v", err)
	}
	return lines
}

func TestWriter_AppendEvent(t *testing.T) {
	stateDir := t.TempDir()
	writer := NewWriter(stateDir)

	at := time.Date(2026, 2, 15, 8, 0, 0, 0, time.UTC)
	if err := writer.Append(Event{
		Time:       at,
		Type:       TypeToolCall,
		RequestID:  "req-1",
		Server:     "workspace",
		Tool:       "read_file",
		Iteration:  1,
		DurationMs: 12,
		Result:     "pragma solidity ^0.8.0;",
	}); err != nil {
		t.Fatalf("Append first event error: %v", err)
	}
	if err := writer.Append(Event{
		Type:      TypeScriptCall,
		RequestID: "req-1",
		Tool:      "deploy",
		Error:     "tool not found: deploy",
	}); err != nil {
		t.Fatalf("Append second event error: %v", err)
	}

	lines := readLines(t, filepath.Join(stateDir, "audit.jsonl"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 jsonl lines, got %d", len(lines))
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line error: %v", err)
	}
	if !first.Time.Equal(at) || first.Server != "workspace" || first.Tool != "read_file" || first.Iteration != 1 {
		t.Fatalf("unexpected first event: %+v", first)
	}

	var second Event
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal second line error: %v", err)
	}
	if second.Time.IsZero() {
		t.Fatal("expected zero time to be stamped")
	}
	if second.Error != "tool not found: deploy" {
		t.Fatalf("unexpected error field %q", second.Error)
	}
}

func TestWriter_TruncatesLongResults(t *testing.T) {
	stateDir := t.TempDir()
	writer := NewWriter(stateDir)
	if err := writer.Append(Event{Type: TypeToolCall, Result: strings.Repeat("x", 2000)}); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	lines := readLines(t, writer.Path())
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if !strings.HasSuffix(ev.Result, "...(truncated)") || len(ev.Result) > 600 {
		t.Fatalf("expected truncated result, got %d bytes", len(ev.Result))
	}
}

func TestWriter_AppendEvent_MkdirAllFailure(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "state")
	if err := os.WriteFile(blocker, []byte("not-a-dir"), 0644); err != nil {
		t.Fatalf("WriteFile state blocker error: %v", err)
	}

	writer := NewWriter(filepath.Join(blocker, "nested"))
	if err := writer.Append(Event{Type: TypeToolCall}); err == nil {
		t.Fatal("expected append error when state path is a file")
	}
}

func TestWriter_NilDiscards(t *testing.T) {
	var w *Writer
	if err := w.Append(Event{Type: TypeToolCall}); err != nil {
		t.Fatalf("nil writer should discard, got %v", err)
	}
}

func TestWriter_AppendEvent_Concurrent(t *testing.T) {
	stateDir := t.TempDir()
	writer := NewWriter(stateDir)

	const total = 20
	var wg sync.WaitGroup
	errCh := make(chan error, total)
	wg.Add(total)
	for i := 0; i < total; i++ {
		go func() {
			defer wg.Done()
			if err := writer.Append(Event{
				Type:      TypeToolCall,
				RequestID: fmt.Sprintf("req-%d", i),
				Tool:      "list_dir",
				Result:    "ok",
			}); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("append failed in concurrent path: %v", err)
	}

	if got := len(readLines(t, writer.Path())); got != total {
		t.Fatalf("expected %d lines, got %d", total, got)
	}
}
