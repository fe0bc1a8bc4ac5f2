package eventlog

import "strings"

// Filter narrows a set of entries by level and source. Zero value matches all.
type Filter struct {
	Levels []Level
	Source string
}

// Match reports whether entry satisfies the filter.
func (f Filter) Match(entry Entry) bool {
	if len(f.Levels) > 0 {
		found := false
		for _, lvl := range f.Levels {
			if entry.Level == lvl {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if src := strings.TrimSpace(f.Source); src != "" && !strings.EqualFold(src, entry.Source) {
		return false
	}
	return true
}

// Apply returns the entries that match the filter, preserving order.
func (f Filter) Apply(entries []Entry) []Entry {
	if len(f.Levels) == 0 && strings.TrimSpace(f.Source) == "" {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if f.Match(entry) {
			out = append(out, entry)
		}
	}
	return out
}
