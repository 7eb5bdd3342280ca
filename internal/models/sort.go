package models

import "strings"

// SortDirection is the order of a sort
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort fields other than timeframe identifiers
const (
	SortFieldSymbol = "symbol"
	SortFieldPrice  = "price"
)

// SortKind selects the sort strategy
type SortKind int

const (
	SortBySymbol SortKind = iota
	SortByPrice
	SortBySignalCount
)

// SortSpec is the caller's requested ordering
type SortSpec struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// DefaultSortSpec orders by symbol ascending
func DefaultSortSpec() SortSpec {
	return SortSpec{Field: SortFieldSymbol, Direction: SortAsc}
}

// Resolve normalizes the spec and returns the strategy it selects. Unknown or
// empty fields fall back to symbol ascending. A missing direction defaults to
// desc for timeframe fields and asc otherwise.
func (s SortSpec) Resolve() (SortSpec, SortKind, Timeframe) {
	field := strings.ToLower(strings.TrimSpace(s.Field))
	dir := SortDirection(strings.ToLower(strings.TrimSpace(string(s.Direction))))
	if dir != SortAsc && dir != SortDesc {
		dir = ""
	}

	switch field {
	case SortFieldSymbol:
		if dir == "" {
			dir = SortAsc
		}
		return SortSpec{Field: field, Direction: dir}, SortBySymbol, ""
	case SortFieldPrice:
		if dir == "" {
			dir = SortAsc
		}
		return SortSpec{Field: field, Direction: dir}, SortByPrice, ""
	}

	if tf, err := ParseTimeframe(field); err == nil {
		if dir == "" {
			dir = SortDesc
		}
		return SortSpec{Field: string(tf), Direction: dir}, SortBySignalCount, tf
	}

	return DefaultSortSpec(), SortBySymbol, ""
}
