package screener

// Paginate returns the 0-based page of symbols. Negative or out-of-range
// pages yield an empty slice.
func Paginate(symbols []string, page, pageSize int) []string {
	if page < 0 || pageSize <= 0 {
		return []string{}
	}
	start := page * pageSize
	if start >= len(symbols) || start < 0 {
		return []string{}
	}
	end := min(start+pageSize, len(symbols))
	out := make([]string, end-start)
	copy(out, symbols[start:end])
	return out
}

// PageCount is the number of pages needed for total items
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
