package pipeline

import "github.com/couchcryptid/climate-daily-etl/internal/domain"

// extract parses page and normalizes every row into observations for
// target.Location. Row and field defects are stamped with target before they
// reach sink. When the same date appears twice on a page, the later row wins.
func (p *Pipeline) extract(target domain.FetchTarget, page []byte, sink domain.DefectSink) []domain.Observation {
	stamped := domain.DefectSinkFunc(func(d domain.Defect) {
		d.Target = target
		sink.Report(d)
	})

	var obs []domain.Observation
	index := make(map[domain.Date]int)
	for row := range p.parse(page, stamped) {
		o, defects, ok := domain.Normalize(target.Location, row)
		for _, d := range defects {
			stamped.Report(d)
		}
		if !ok {
			continue
		}
		if i, dup := index[o.Date]; dup {
			obs[i] = o
			continue
		}
		index[o.Date] = len(obs)
		obs = append(obs, o)
	}
	return obs
}
