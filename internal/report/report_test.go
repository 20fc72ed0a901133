package report

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

func f(v float64) *float64 { return &v }

func obs(year int, month time.Month, day int, mean *float64) domain.Observation {
	return domain.Observation{Location: "Winnipeg", Date: domain.NewDate(year, month, day), MeanTemp: mean}
}

func TestBoxPlot_GroupsByYearAscending(t *testing.T) {
	data := []domain.Observation{
		obs(2021, time.March, 1, f(3)),
		obs(2020, time.January, 1, f(-10)),
		obs(2021, time.March, 2, f(1)),
		obs(2020, time.January, 2, nil),
		obs(2019, time.June, 1, f(20)),
		obs(2021, time.March, 3, f(2)),
	}

	series, err := BoxPlot(data, 2020, 2021)
	require.NoError(t, err)

	require.Len(t, series.Years, 2)
	assert.Equal(t, 2020, series.Years[0].Year)
	assert.Equal(t, []float64{-10}, series.Years[0].Means, "absent means are skipped")
	assert.Equal(t, 2021, series.Years[1].Year)
	assert.Equal(t, []float64{3, 1, 2}, series.Years[1].Means)

	y := series.Years[1]
	assert.InDelta(t, 1, y.Min, 1e-9)
	assert.InDelta(t, 1.5, y.Q1, 1e-9)
	assert.InDelta(t, 2, y.Median, 1e-9)
	assert.InDelta(t, 2.5, y.Q3, 1e-9)
	assert.InDelta(t, 3, y.Max, 1e-9)
}

func TestBoxPlot_EmptyYearsOmitted(t *testing.T) {
	series, err := BoxPlot([]domain.Observation{obs(2022, time.May, 1, nil)}, 2020, 2022)
	require.NoError(t, err)
	assert.NotNil(t, series.Years)
	assert.Empty(t, series.Years)
}

func TestBoxPlot_InvalidRange(t *testing.T) {
	_, err := BoxPlot(nil, 2022, 2020)
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestLine(t *testing.T) {
	data := []domain.Observation{
		obs(2022, time.January, 3, f(-5)),
		obs(2022, time.January, 1, f(-1)),
		obs(2022, time.January, 2, nil),
		obs(2022, time.February, 1, f(0)),
	}

	series, err := Line(data, 2022, 1)
	require.NoError(t, err)

	want := []Point{{Day: 1, Mean: f(-1)}, {Day: 2}, {Day: 3, Mean: f(-5)}}
	if diff := cmp.Diff(want, series.Points); diff != "" {
		t.Fatalf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestLine_InvalidMonth(t *testing.T) {
	for _, m := range []int{0, 13, -1} {
		_, err := Line(nil, 2022, m)
		require.ErrorIs(t, err, ErrInvalidPeriod, "month %d", m)
	}
}

func TestQuantile_SingleValue(t *testing.T) {
	assert.InDelta(t, 4.0, quantile([]float64{4}, 0.75), 1e-9)
}
