// Package domain models daily climate observations scraped from the
// Environment Canada daily-data pages.
//
// # Data Source
//
// Each station publishes one HTML page per month:
//
//	https://climate.weather.gc.ca/climate_data/daily_data_e.html?StationID=27174&timeframe=2&Year=2024&Month=5
//
// Every day is one table row carrying data-row="date" and a data-date
// attribute with the ISO date. Temperature cells contain a label and a value
// token separated by whitespace:
//
//	<tr data-row="date" data-date="2024-05-01"><td>Max 12.5</td><td>Min -1.0</td></tr>
//
// Labels are case-sensitive ("Max", "Min"). Missing days, blank cells and
// flagged values ("M", "12.5E") occur in real pages.
//
// # Absent Values
//
// A temperature that cannot be parsed is stored as NULL, not zero. Mean
// temperature is derived as (max+min)/2 only when both are present.
//
// # Gaps
//
// [MonthTargets] enumerates month pages for a bulk download and
// [TargetsSinceLast] enumerates the days missing since the latest stored
// observation. Callers collapse day targets onto the month pages covering them.
//
// # Idempotency
//
// Observations are keyed by (location, date). Stores upsert on that key so
// re-ingesting a page replaces rows instead of duplicating them.
package domain
