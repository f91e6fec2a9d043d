package grid

import (
	"github.com/bmizerany/perks/quantile"
)

// Stats summarises the known elevations of a grid.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	P05   float64
	P50   float64
	P95   float64
}

// Summarise computes Stats. The quantiles are estimates from a targeted
// stream, good to a fraction of a percent.
func (g *Grid) Summarise() (Stats, bool) {
	lo, hi, ok := g.Range()
	if !ok {
		return Stats{}, false
	}
	q := quantile.NewTargeted(0.05, 0.50, 0.95)
	n := 0
	for i, v := range g.vals {
		if g.ok[i] {
			q.Insert(v)
			n++
		}
	}
	return Stats{
		Count: n,
		Min:   lo,
		Max:   hi,
		P05:   q.Query(0.05),
		P50:   q.Query(0.50),
		P95:   q.Query(0.95),
	}, true
}
