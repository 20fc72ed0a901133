package observability

import (
	"log/slog"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

// LogDefects returns a sink that logs each defect at warn level.
func LogDefects(logger *slog.Logger) domain.DefectSink {
	return domain.DefectSinkFunc(func(d domain.Defect) {
		logger.Warn("ingestion defect",
			"kind", string(d.Kind),
			"context", d.Context(),
			"field", d.Field,
			"message", d.Message,
		)
	})
}

// CountDefects returns a sink that increments the defects counter by kind.
func CountDefects(m *Metrics) domain.DefectSink {
	return domain.DefectSinkFunc(func(d domain.Defect) {
		m.Defects.WithLabelValues(string(d.Kind)).Inc()
	})
}

// Tee fans a defect out to every sink in order.
func Tee(sinks ...domain.DefectSink) domain.DefectSink {
	return domain.DefectSinkFunc(func(d domain.Defect) {
		for _, s := range sinks {
			s.Report(d)
		}
	})
}
