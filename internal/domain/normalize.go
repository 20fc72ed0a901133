package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize validates a raw row and coerces its fields into an Observation for
// location. It never fails outright: problems come back as defects. ok is false
// when the row must be dropped (malformed date, or neither Max nor Min usable);
// FieldDefects for individual values do not drop the row on their own.
func Normalize(location string, row RawRow) (obs Observation, defects []Defect, ok bool) {
	dateToken := strings.TrimSpace(row.Date)
	date, err := ParseDate(dateToken)
	if err != nil {
		return Observation{}, []Defect{{
			Row:     dateToken,
			Kind:    ParseDefect,
			Message: fmt.Sprintf("malformed date %q", dateToken),
		}}, false
	}

	obs = Observation{Location: location, Date: date}

	var d *Defect
	obs.MaxTemp, d = coerceField(dateToken, FieldMax, row.Fields)
	if d != nil {
		defects = append(defects, *d)
	}
	obs.MinTemp, d = coerceField(dateToken, FieldMin, row.Fields)
	if d != nil {
		defects = append(defects, *d)
	}

	if obs.MaxTemp == nil && obs.MinTemp == nil {
		defects = append(defects, Defect{
			Row:     dateToken,
			Kind:    ParseDefect,
			Message: "no usable Max or Min temperature",
		})
		return Observation{}, defects, false
	}

	obs.MeanTemp = deriveMean(obs.MaxTemp, obs.MinTemp)
	return obs, defects, true
}

// coerceField parses the value recorded for label. An absent label yields
// (nil, nil); a present but non-numeric value yields (nil, FieldDefect).
func coerceField(row, label string, fields map[string]string) (*float64, *Defect) {
	raw, present := fields[label]
	if !present {
		return nil, nil
	}
	raw = strings.TrimSpace(raw)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &Defect{
			Row:     row,
			Field:   label,
			Kind:    FieldDefect,
			Message: fmt.Sprintf("value %q is not numeric", raw),
		}
	}
	return &v, nil
}

// deriveMean averages max and min, and only when both are present.
func deriveMean(maxTemp, minTemp *float64) *float64 {
	if maxTemp == nil || minTemp == nil {
		return nil
	}
	mean := (*maxTemp + *minTemp) / 2
	return &mean
}
