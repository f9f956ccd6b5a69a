// Package models defines the core data structures used throughout the application.
package models

import (
	"fmt"
	"time"
)

// Exchange represents a stock exchange.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
	CDS Exchange = "CDS" // Currency
	MCX Exchange = "MCX" // Commodity
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Day truncates t to its calendar date in UTC, keeping t's own year/month/day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from 'from' to 'to'.
// The result is negative when 'to' precedes 'from'.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// Pagination describes one page of a listing.
type Pagination struct {
	Count       int `json:"count"`
	TotalPages  int `json:"total_pages"`
	CurrentPage int `json:"current_page"`
	PageSize    int `json:"page_size"`
}

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// NewPagination normalizes page and size and computes the page count for total items.
func NewPagination(page, pageSize, total int) Pagination {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	pages := (total + pageSize - 1) / pageSize
	return Pagination{
		Count:       total,
		TotalPages:  pages,
		CurrentPage: page,
		PageSize:    pageSize,
	}
}

// Offset returns the row offset of the current page.
func (p Pagination) Offset() int {
	return (p.CurrentPage - 1) * p.PageSize
}
