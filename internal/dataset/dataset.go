// Package dataset reads and writes the local CSV bar files the collector
// serves backtests from.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"MarketBackfill/internal/bars"
	"MarketBackfill/internal/model"
	"MarketBackfill/internal/source"

	"go.uber.org/zap"
)

var header = []string{"timestamp", "open", "high", "low", "close", "volume"}

// Path returns the dataset file for a symbol/timeframe under dir.
func Path(dir, symbol string, tf model.Timeframe) string {
	return filepath.Join(dir, bars.Slug(symbol)+"_"+bars.Slug(string(tf))+".csv")
}

// Source serves bars from dataset files under Dir.
type Source struct {
	Dir    string
	Logger *zap.Logger
}

// NewSource creates a dataset source rooted at dir.
func NewSource(dir string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{Dir: dir, Logger: logger}
}

func (s *Source) Name() string { return string(model.SourceLocal) }

// Path resolves the file for a symbol/timeframe.
func (s *Source) Path(symbol string, tf model.Timeframe) string {
	return Path(s.Dir, symbol, tf)
}

// Exists reports whether a dataset file is present.
func (s *Source) Exists(symbol string, tf model.Timeframe) bool {
	info, err := os.Stat(s.Path(symbol, tf))
	return err == nil && !info.IsDir()
}

// LoadBars reads the dataset file for the request. Malformed rows are
// skipped; an empty or header-only file yields no bars and no error.
func (s *Source) LoadBars(_ context.Context, req model.DataRequest) ([]model.Bar, error) {
	path := s.Path(req.Symbol, req.Timeframe)
	list, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	s.Logger.Debug("dataset loaded",
		zap.String("path", path),
		zap.Int("rows", len(list)))
	return bars.SortChronologically(bars.FilterForRequest(list, req)), nil
}

// ReadFile parses every valid bar in a dataset file.
func ReadFile(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", source.ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []model.Bar{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	out := []model.Bar{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return nil, fmt.Errorf("read dataset: %w", err)
		}
		if b, ok := bars.Sanitize(rowRecord(row, cols)); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// rowRecord turns a CSV row into a raw record: numeric cells become float64,
// everything else stays text for Sanitize to judge.
func rowRecord(row []string, cols map[string]int) map[string]any {
	rec := make(map[string]any, len(header))
	for _, key := range header {
		idx, ok := cols[key]
		if !ok || idx >= len(row) {
			continue
		}
		cell := strings.TrimSpace(row[idx])
		if key == "timestamp" {
			rec[key] = cell
			continue
		}
		if f, err := strconv.ParseFloat(cell, 64); err == nil {
			rec[key] = f
		} else {
			rec[key] = cell
		}
	}
	return rec
}

// Write replaces the dataset file for symbol/timeframe with list.
func (s *Source) Write(symbol string, tf model.Timeframe, list []model.Bar) (string, error) {
	path := s.Path(symbol, tf)
	if err := s.WriteFile(path, list); err != nil {
		return "", err
	}
	return path, nil
}

// FetchedPath is where vendor bars go when the dataset path holds a file
// the collector does not own. Adjusted and raw prices get separate files.
func (s *Source) FetchedPath(symbol string, tf model.Timeframe, adjusted bool) string {
	kind := "raw"
	if adjusted {
		kind = "adjusted"
	}
	return filepath.Join(s.Dir, bars.Slug(symbol)+"_"+bars.Slug(string(tf))+"."+kind+".fetched.csv")
}

// WriteFile replaces path with list. The file is written beside the target
// and renamed into place.
func (s *Source) WriteFile(path string, list []model.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dataset-*.csv")
	if err != nil {
		return fmt.Errorf("create dataset temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeCSV(tmp, list); err != nil {
		tmp.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	s.Logger.Info("dataset written", zap.String("path", path), zap.Int("rows", len(list)))
	return nil
}

func writeCSV(out io.Writer, list []model.Bar) error {
	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, b := range list {
		row := []string{
			b.Timestamp,
			formatF(b.Open), formatF(b.High), formatF(b.Low), formatF(b.Close), formatF(b.Volume),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Summary describes what a bar list spans.
type Summary struct {
	Start string
	End   string
	Rows  int
}

// Summarize reports the first and last calendar day of a sorted list.
func Summarize(sorted []model.Bar) Summary {
	sum := Summary{Rows: len(sorted)}
	for _, b := range sorted {
		if ts, ok := bars.ParseTimestamp(b.Timestamp); ok {
			sum.Start = model.FormatDate(ts)
			break
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if ts, ok := bars.ParseTimestamp(sorted[i].Timestamp); ok {
			sum.End = model.FormatDate(ts)
			break
		}
	}
	return sum
}
