package incident

import "time"

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t's calendar date lies within the range.
// Time of day is ignored.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(r.Start)) && !d.After(Day(r.End))
}

// FilterByDate returns the records within r, in input order. The input slice
// is not modified.
func FilterByDate(records []Record, r DateRange) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if r.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out
}

// Span returns the first and last calendar dates among records.
func Span(records []Record) (DateRange, bool) {
	if len(records) == 0 {
		return DateRange{}, false
	}
	lo, hi := records[0].Date, records[0].Date
	for _, rec := range records[1:] {
		if rec.Date.Before(lo) {
			lo = rec.Date
		}
		if rec.Date.After(hi) {
			hi = rec.Date
		}
	}
	return DateRange{Start: Day(lo), End: Day(hi)}, true
}

// Counts totals records per category.
type Counts struct {
	Total           int
	CivilProtection int
	MedicalServices int
}

// Count tallies records by category.
func Count(records []Record) Counts {
	c := Counts{Total: len(records)}
	for _, rec := range records {
		switch rec.Category {
		case MedicalServices:
			c.MedicalServices++
		default:
			c.CivilProtection++
		}
	}
	return c
}

// ByCategory splits records into the two category buckets.
func ByCategory(records []Record) map[Category][]Record {
	out := make(map[Category][]Record, len(Categories))
	for _, rec := range records {
		out[rec.Category] = append(out[rec.Category], rec)
	}
	return out
}
