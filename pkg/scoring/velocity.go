package scoring

import "trendfeed/pkg/content"

// VelocityFromSnapshots derives engagement growth per hour from the
// oldest and newest observation of one item. Snapshots must be ordered
// oldest first. Fewer than two observations, a span under six minutes,
// or shrinking totals all yield zero.
func VelocityFromSnapshots(snaps []content.Snapshot) float64 {
	if len(snaps) < 2 {
		return 0
	}

	first, last := snaps[0], snaps[len(snaps)-1]
	hours := last.At.Sub(first.At).Hours()
	if hours < 0.1 {
		return 0
	}

	v := (last.Total - first.Total) / hours
	if v < 0 {
		return 0
	}
	return v
}
