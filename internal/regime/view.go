package regime

import "time"

// SummaryView is the JSON shape of a Summary. Absent ratios are null.
type SummaryView struct {
	AsOf        time.Time           `json:"asof"`
	IsAltseason bool                `json:"is_altseason"`
	Greens      int                 `json:"greens"`
	Present     int                 `json:"present"`
	Ratios      map[Rule]*float64   `json:"ratios"`
	Thresholds  map[Rule]float64    `json:"thresholds"`
	Triggers    map[Rule]*bool      `json:"triggers"`
	Directions  map[Rule]Comparison `json:"directions"`
}

// View converts the summary for JSON responses.
func (s Summary) View() SummaryView {
	v := SummaryView{
		AsOf:        s.AsOf.UTC(),
		IsAltseason: s.IsAltseason,
		Greens:      s.Greens,
		Present:     s.Present,
		Ratios:      make(map[Rule]*float64, len(s.Checks)),
		Thresholds:  make(map[Rule]float64, len(s.Checks)),
		Triggers:    make(map[Rule]*bool, len(s.Checks)),
		Directions:  make(map[Rule]Comparison, len(s.Checks)),
	}
	for _, c := range s.Checks {
		v.Thresholds[c.Rule] = c.Threshold.InexactFloat64()
		v.Directions[c.Rule] = c.Comparison
		if !c.Present() {
			v.Ratios[c.Rule] = nil
			v.Triggers[c.Rule] = nil
			continue
		}
		value := c.Value.Decimal.InexactFloat64()
		pass := c.Pass
		v.Ratios[c.Rule] = &value
		v.Triggers[c.Rule] = &pass
	}
	return v
}
