package model

import (
	"fmt"
	"time"
)

// CacheEntry is the on-disk document for one cached vendor series.
type CacheEntry struct {
	FetchedAt time.Time `json:"fetchedAt"`
	Bars      []Bar     `json:"bars"`
}

// Fresh reports whether the entry is still within ttl at now.
func (e CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) <= ttl
}

// CoverageRecord states which date window of a series is known to be on disk.
type CoverageRecord struct {
	Source    SourceKind
	Symbol    string
	Timeframe Timeframe
	Start     string
	End       string
	Adjusted  bool
	Rows      int
	Path      string
	UpdatedAt time.Time
}

// Contains reports whether [start, end] lies inside the recorded window,
// both ends inclusive, compared as calendar dates. An empty request bound is
// not enforced; an empty record bound never contains an enforced one.
func (c CoverageRecord) Contains(start, end string) bool {
	if start != "" {
		if !c.dateWithin(start) {
			return false
		}
	}
	if end != "" {
		if !c.dateWithin(end) {
			return false
		}
	}
	return true
}

func (c CoverageRecord) dateWithin(s string) bool {
	d, err := ParseDate(s)
	if err != nil {
		return false
	}
	lo, err := ParseDate(c.Start)
	if err != nil {
		return false
	}
	hi, err := ParseDate(c.End)
	if err != nil {
		return false
	}
	return !d.Before(lo) && !d.After(hi)
}

// Window renders the recorded range for messages.
func (c CoverageRecord) Window() string {
	return fmt.Sprintf("%s..%s", orOpen(c.Start), orOpen(c.End))
}

// FetchRange is the day-granular window actually sent to a vendor.
type FetchRange struct {
	StartDate time.Time
	EndDate   time.Time
}

// Empty is true when clamping left nothing to fetch.
func (r FetchRange) Empty() bool {
	return r.EndDate.Before(r.StartDate)
}

// ResolveFetchRange derives the vendor window from a request, clamping the
// end to today (UTC) since vendors never hold future bars. Both bounds are
// required.
func ResolveFetchRange(req DataRequest, now time.Time) (FetchRange, error) {
	if req.Start == "" || req.End == "" {
		return FetchRange{}, fmt.Errorf("range requires start and end")
	}
	start, err := ParseDate(req.Start)
	if err != nil {
		return FetchRange{}, err
	}
	end, err := ParseDate(req.End)
	if err != nil {
		return FetchRange{}, err
	}
	if today := truncateDay(now); end.After(today) {
		end = today
	}
	return FetchRange{StartDate: start, EndDate: end}, nil
}
