package domain

import "time"

// MonthTargets lists one month-page target per (year, month) from January of
// startYear through the last month of min(endYear, today.Year), never going
// past today's month. The result is chronological and free of duplicates.
func MonthTargets(location string, startYear, endYear int, today Date) []FetchTarget {
	lastYear := min(endYear, today.Year)
	if startYear > lastYear {
		return nil
	}

	targets := make([]FetchTarget, 0, (lastYear-startYear+1)*12)
	for year := startYear; year <= lastYear; year++ {
		lastMonth := time.December
		if year == today.Year {
			lastMonth = today.Month
		}
		for month := time.January; month <= lastMonth; month++ {
			targets = append(targets, FetchTarget{Location: location, Year: year, Month: int(month)})
		}
	}
	return targets
}

// TargetsSinceLast lists one day target for every calendar day after last up
// to and including today. hasBaseline is false when nothing is stored yet
// (last == nil), in which case a bulk download is required instead. A baseline
// at or after today yields an empty, non-nil list.
func TargetsSinceLast(location string, last *Date, today Date) (targets []FetchTarget, hasBaseline bool) {
	if last == nil {
		return nil, false
	}

	targets = []FetchTarget{}
	for d := last.AddDays(1); !d.After(today); d = d.AddDays(1) {
		targets = append(targets, FetchTarget{
			Location: location,
			Year:     d.Year,
			Month:    int(d.Month),
			Day:      d.Day,
		})
	}
	return targets, true
}
