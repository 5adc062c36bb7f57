// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package scan

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotProfile renders the most recent sweep, with the detected obstacles
// marked, to path. The format follows the file extension.
func PlotProfile(path string, samples []Sample, set *ObstacleSet) error {
	if len(samples) == 0 {
		return fmt.Errorf("plot %s: no samples", path)
	}

	p := plot.New()
	p.Title.Text = "Range sweep"
	p.X.Label.Text = "Angle (deg)"
	p.Y.Label.Text = "Distance (cm)"

	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i].X = s.Angle
		pts[i].Y = s.Dist
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("plot %s: %w", path, err)
	}
	p.Add(line)

	if set != nil && set.Len() > 0 {
		mids := make(plotter.XYs, set.Len())
		for i, o := range set.Obstacles() {
			mids[i].X = o.Angle
			mids[i].Y = o.Dist
		}

		sc, err := plotter.NewScatter(mids)
		if err != nil {
			return fmt.Errorf("plot %s: %w", path, err)
		}
		p.Add(sc)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("plot %s: %w", path, err)
	}

	return nil
}
