// Package audit exports the score-update audit trail for offline review.
// The trail itself is written by the update pipeline; this package only
// reads, filters, and ships entries.
package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"scoreboard/core"
)

// Exporter ships audit entries somewhere. Implementations may batch; Flush
// forces any buffered entries out.
type Exporter interface {
	Export(ctx context.Context, entry core.AuditEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// Filter selects entries for export. Zero fields match everything.
type Filter struct {
	Actor       core.ActorID
	OnlyFailed  bool
	OnlySuccess bool
	Since       time.Time
}

// Matches reports whether entry passes the filter.
func (f Filter) Matches(entry core.AuditEntry) bool {
	if f.Actor != "" && entry.Actor != f.Actor {
		return false
	}
	if f.OnlyFailed && entry.Success {
		return false
	}
	if f.OnlySuccess && !entry.Success {
		return false
	}
	if !f.Since.IsZero() && entry.Time.Before(f.Since) {
		return false
	}
	return true
}

// ExportAll runs entries through the filter into the exporter and flushes.
func ExportAll(ctx context.Context, exp Exporter, entries []core.AuditEntry, f Filter) error {
	for _, e := range entries {
		if !f.Matches(e) {
			continue
		}
		if err := exp.Export(ctx, e); err != nil {
			return fmt.Errorf("export entry %s: %w", e.ID, err)
		}
	}
	return exp.Flush(ctx)
}

// JSONExporter writes entries as a JSON array to a writer.
type JSONExporter struct {
	w       io.Writer
	entries []core.AuditEntry
}

func NewJSONExporter(w io.Writer) *JSONExporter {
	return &JSONExporter{w: w}
}

func (e *JSONExporter) Export(_ context.Context, entry core.AuditEntry) error {
	e.entries = append(e.entries, entry)
	return nil
}

func (e *JSONExporter) Flush(_ context.Context) error {
	if e.entries == nil {
		e.entries = []core.AuditEntry{}
	}
	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e.entries); err != nil {
		return fmt.Errorf("encode audit entries: %w", err)
	}
	e.entries = nil
	return nil
}

func (e *JSONExporter) Close() error { return nil }

// csvHeader is the column order of CSV exports.
var csvHeader = []string{"id", "actor_id", "action", "delta", "prev_score", "new_score", "time", "success", "reason", "idempotency_key"}

// CSVExporter streams entries as CSV rows, header first.
type CSVExporter struct {
	w         *csv.Writer
	wroteHead bool
}

func NewCSVExporter(w io.Writer) *CSVExporter {
	return &CSVExporter{w: csv.NewWriter(w)}
}

func (e *CSVExporter) Export(_ context.Context, entry core.AuditEntry) error {
	if !e.wroteHead {
		if err := e.w.Write(csvHeader); err != nil {
			return err
		}
		e.wroteHead = true
	}
	row := []string{
		entry.ID,
		string(entry.Actor),
		string(entry.Action),
		strconv.FormatInt(entry.Delta, 10),
		strconv.FormatInt(entry.PrevScore, 10),
		strconv.FormatInt(entry.NewScore, 10),
		entry.Time.UTC().Format(time.RFC3339Nano),
		strconv.FormatBool(entry.Success),
		string(entry.Reason),
		entry.IdempotencyKey,
	}
	return e.w.Write(row)
}

func (e *CSVExporter) Flush(_ context.Context) error {
	e.w.Flush()
	return e.w.Error()
}

func (e *CSVExporter) Close() error { return nil }

// HTTPExporter POSTs batches of entries to an external collector.
type HTTPExporter struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	buffer     []core.AuditEntry
	batchSize  int
}

func NewHTTPExporter(endpoint, apiKey string, batchSize int) *HTTPExporter {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &HTTPExporter{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		buffer:     make([]core.AuditEntry, 0, batchSize),
		batchSize:  batchSize,
	}
}

func (e *HTTPExporter) Export(ctx context.Context, entry core.AuditEntry) error {
	e.buffer = append(e.buffer, entry)
	if len(e.buffer) >= e.batchSize {
		return e.Flush(ctx)
	}
	return nil
}

func (e *HTTPExporter) Flush(ctx context.Context) error {
	if len(e.buffer) == 0 {
		return nil
	}
	payload, err := json.Marshal(e.buffer)
	if err != nil {
		return fmt.Errorf("marshal audit batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build audit export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send audit batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("audit export failed with status %d: %s", resp.StatusCode, string(body))
	}
	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Flush(ctx)
}

// MultiExporter fans entries out to several exporters.
type MultiExporter struct {
	exporters []Exporter
}

func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{exporters: exporters}
}

func (m *MultiExporter) Export(ctx context.Context, entry core.AuditEntry) error {
	for _, exp := range m.exporters {
		if err := exp.Export(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiExporter) Flush(ctx context.Context) error {
	for _, exp := range m.exporters {
		if err := exp.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiExporter) Close() error {
	var lastErr error
	for _, exp := range m.exporters {
		if err := exp.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
