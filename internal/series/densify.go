package series

// Densify turns a sparse series into one DenseEntry per calendar day between
// the earliest and latest observed dates, inclusive. Days with no observation
// carry the missing marker.
//
// Input order is irrelevant: min and max are computed over the whole input,
// and duplicate dates resolve to the highest reading so the output does not
// depend on which duplicate came first.
func Densify(entries []Entry) []DenseEntry {
	if len(entries) == 0 {
		return []DenseEntry{}
	}

	byDate := make(map[Date]float64, len(entries))
	minDate, maxDate := entries[0].Date, entries[0].Date

	for _, e := range entries {
		if e.Date.Before(minDate) {
			minDate = e.Date
		}
		if e.Date.After(maxDate) {
			maxDate = e.Date
		}
		if prev, ok := byDate[e.Date]; ok && prev >= e.Temperature {
			continue
		}
		byDate[e.Date] = e.Temperature
	}

	out := make([]DenseEntry, 0, minDate.DaysUntil(maxDate)+1)
	for d := minDate; !d.After(maxDate); d = d.AddDays(1) {
		temp, ok := byDate[d]
		if !ok {
			out = append(out, DenseEntry{Date: d, Missing: true})
			continue
		}
		out = append(out, DenseEntry{Date: d, Temperature: &temp})
	}
	return out
}
