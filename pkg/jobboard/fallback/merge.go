package fallback

import "github.com/nonibytes/jobboard/pkg/jobboard/record"

// Merge returns live in order followed by the static records whose identity
// is not present live. Each identity appears once, as its first live row
// when there is one.
func Merge(live, static []record.Record, identityKey string) []record.Record {
	seen := make(map[string]bool, len(live))
	out := make([]record.Record, 0, len(live)+len(static))
	add := func(r record.Record) {
		id := record.ID(r, identityKey)
		if id != "" {
			if seen[id] {
				return
			}
			seen[id] = true
		}
		out = append(out, r)
	}
	for _, r := range live {
		add(r)
	}
	for _, r := range static {
		add(r)
	}
	return out
}

// Filter keeps the records matching f.
func Filter(rows []record.Record, match func(record.Record) bool) []record.Record {
	var out []record.Record
	for _, r := range rows {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}
