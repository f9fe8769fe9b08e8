package model

import (
	"fmt"
	"strings"
	"time"
)

// Bar represents a single OHLCV observation. Timestamp keeps the textual
// form the bar arrived in so datasets round-trip unchanged.
type Bar struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// SourceKind names where a request wants its bars from.
type SourceKind string

const (
	SourceAuto    SourceKind = "auto"
	SourceLocal   SourceKind = "local"
	SourceTiingo  SourceKind = "tiingo"
	SourcePolygon SourceKind = "polygon"
)

// Remote reports whether the kind is a network vendor.
func (s SourceKind) Remote() bool {
	return s == SourceTiingo || s == SourcePolygon
}

// ParseSourceKind normalizes a source name. Empty input means auto.
func ParseSourceKind(input string) (SourceKind, error) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(input))) {
	case "", SourceAuto:
		return SourceAuto, nil
	case SourceLocal:
		return SourceLocal, nil
	case SourceTiingo:
		return SourceTiingo, nil
	case SourcePolygon:
		return SourcePolygon, nil
	}
	return "", fmt.Errorf("unknown source %q", input)
}

// Timeframe is the sampling granularity of a bar series.
type Timeframe string

const (
	Timeframe1d  Timeframe = "1d"
	Timeframe1h  Timeframe = "1h"
	Timeframe15m Timeframe = "15m"
	Timeframe1m  Timeframe = "1m"
)

// Intraday is true for every timeframe finer than one day.
func (tf Timeframe) Intraday() bool {
	return tf != Timeframe1d
}

// ParseTimeframe validates a timeframe key.
func ParseTimeframe(input string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToLower(strings.TrimSpace(input))); tf {
	case Timeframe1d, Timeframe1h, Timeframe15m, Timeframe1m:
		return tf, nil
	}
	return "", fmt.Errorf("unsupported timeframe %q", input)
}

// DataRequest is one logical ask for a bar series. Start and End are
// calendar dates (2006-01-02); either may be empty.
type DataRequest struct {
	Source    SourceKind
	Symbol    string
	Timeframe Timeframe
	Start     string
	End       string
	Adjusted  bool
}

// NewDataRequest returns a request with the default source (auto) and
// adjusted pricing enabled.
func NewDataRequest(symbol string, tf Timeframe, start, end string) DataRequest {
	return DataRequest{
		Source:    SourceAuto,
		Symbol:    symbol,
		Timeframe: tf,
		Start:     start,
		End:       end,
		Adjusted:  true,
	}
}

// Validate checks the request shape. It performs no I/O.
func (r DataRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if _, err := ParseTimeframe(string(r.Timeframe)); err != nil {
		return err
	}
	if _, err := ParseSourceKind(string(r.Source)); err != nil {
		return err
	}
	start, hasStart, err := parseBound("start", r.Start)
	if err != nil {
		return err
	}
	end, hasEnd, err := parseBound("end", r.End)
	if err != nil {
		return err
	}
	if hasStart && hasEnd && end.Before(start) {
		return fmt.Errorf("start %s is after end %s", r.Start, r.End)
	}
	return nil
}

// String renders the request for logs and error messages.
func (r DataRequest) String() string {
	return fmt.Sprintf("%s %s [%s..%s] source=%s adjusted=%t",
		r.Symbol, r.Timeframe, orOpen(r.Start), orOpen(r.End), r.Source, r.Adjusted)
}

func orOpen(s string) string {
	if strings.TrimSpace(s) == "" {
		return "*"
	}
	return s
}

const dateLayout = "2006-01-02"

// ParseDate parses a calendar date, accepting a full timestamp and keeping
// only its UTC day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return truncateDay(t), nil
}

// FormatDate renders a time as a calendar date.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseBound(name, s string) (time.Time, bool, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, false, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s: %w", name, err)
	}
	return t, true, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
