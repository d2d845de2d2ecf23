package histogram

import (
	"fmt"
)

// Match derives the mapping that equalises current against previous by
// walking both cumulative distributions with a single pair of cursors
// in lockstep: at each step the bin just reached in current is mapped
// to whichever bin previous's cursor currently sits on, and only then
// does whichever cursor's cumulative mass is behind (ties advance
// both) move forward. The walk ends once both cursors reach the last
// bin, which is mapped to previous's last bin. A NaN cumulative value
// can only arise from a malformed histogram (one with a NaN bin) and is
// treated as fatal.
func Match(current, previous Histogram) (Mapping, error) {
	var mapping Mapping

	var cumulativeCurrent, cumulativePrevious float64
	currentBin, previousBin := 0, 0

	for currentBin != Segments-1 || previousBin != Segments-1 {
		mapping[currentBin] = uint16(previousBin)

		switch {
		case cumulativeCurrent < cumulativePrevious:
			if currentBin < Segments-1 {
				cumulativeCurrent += current[currentBin]
				currentBin++
			} else {
				cumulativePrevious += previous[previousBin]
				previousBin++
			}
		case cumulativeCurrent > cumulativePrevious:
			if previousBin < Segments-1 {
				cumulativePrevious += previous[previousBin]
				previousBin++
			} else {
				cumulativeCurrent += current[currentBin]
				currentBin++
			}
		case cumulativeCurrent == cumulativePrevious:
			if currentBin < Segments-1 {
				cumulativeCurrent += current[currentBin]
				currentBin++
			}
			if previousBin < Segments-1 {
				cumulativePrevious += previous[previousBin]
				previousBin++
			}
		default:
			return Mapping{}, fmt.Errorf("histogram.Match: non-comparable cumulative masses (current=%v, previous=%v)", cumulativeCurrent, cumulativePrevious)
		}
	}
	// Both cursors now rest on the last bin; map it like every other step.
	mapping[currentBin] = uint16(previousBin)

	return mapping, nil
}
