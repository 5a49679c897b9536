package handshake

import (
	"fmt"
	"sort"

	"github.com/danmuck/raknet/internal/protocol"
)

// Unit is one candidate MTU with its probe budget.
type Unit struct {
	Size    int
	Retries int
}

// DefaultUnits is the probe ladder used when none is configured.
func DefaultUnits() []Unit {
	return []Unit{
		{Size: protocol.MaximumMTU, Retries: 4},
		{Size: 1200, Retries: 4},
		{Size: 576, Retries: 5},
	}
}

// SortUnits returns units ordered largest first. When sizes repeat the
// later entry wins.
func SortUnits(units []Unit) []Unit {
	bySize := make(map[int]Unit, len(units))
	for _, u := range units {
		bySize[u.Size] = u
	}
	out := make([]Unit, 0, len(bySize))
	for _, u := range bySize {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Size > out[j].Size
	})
	return out
}

func validateUnits(units []Unit) error {
	if len(units) == 0 {
		return fmt.Errorf("%w: no candidate units", protocol.ErrNoCompatibleMTU)
	}
	for _, u := range units {
		if u.Size < protocol.MinimumMTU || u.Size > protocol.MaximumMTU {
			return fmt.Errorf("%w: unit %d outside [%d, %d]", protocol.ErrInvalidMTU, u.Size, protocol.MinimumMTU, protocol.MaximumMTU)
		}
		if u.Retries <= 0 {
			return fmt.Errorf("%w: unit %d has no retries", protocol.ErrInvalidMTU, u.Size)
		}
	}
	return nil
}
