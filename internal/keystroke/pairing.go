// Package keystroke turns raw key event streams into timing metrics.
package keystroke

import (
	"math"
	"sort"
	"strings"

	"github.com/verte-zerg/keyprint/internal/model"
)

const absent = -1

var modifierKeys = map[string]struct{}{
	"Shift":    {},
	"Control":  {},
	"Alt":      {},
	"Meta":     {},
	"CapsLock": {},
	"NumLock":  {},
}

// Pair is a matched key press and release.
type Pair struct {
	Down float64
	Up   float64
}

// Hold returns the press duration.
func (p Pair) Hold() float64 {
	return p.Up - p.Down
}

type pairKey struct {
	code     string
	key      string
	index    int
	location int
}

// IsModifier reports whether an event belongs to a modifier-only key, judged
// by its logical key or by its physical code without the side suffix.
func IsModifier(ev model.KeystrokeEvent) bool {
	if _, ok := modifierKeys[ev.Key]; ok {
		return true
	}
	code := strings.TrimSuffix(strings.TrimSuffix(ev.Code, "Left"), "Right")
	_, ok := modifierKeys[code]
	return ok
}

// Normalize drops unusable events and returns the rest sorted by time, with
// downs ordered before ups at equal timestamps.
func Normalize(events []model.KeystrokeEvent) []model.KeystrokeEvent {
	out := make([]model.KeystrokeEvent, 0, len(events))
	for _, ev := range events {
		if math.IsNaN(ev.T) || math.IsInf(ev.T, 0) || ev.T < 0 {
			continue
		}
		if ev.Repeat || IsModifier(ev) {
			continue
		}
		if ev.Type != model.KeyDown && ev.Type != model.KeyUp {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].T != out[j].T {
			return out[i].T < out[j].T
		}
		return out[i].Type == model.KeyDown && out[j].Type == model.KeyUp
	})
	return out
}

func keyFor(ev model.KeystrokeEvent) pairKey {
	k := pairKey{code: ev.Code, key: ev.Key, index: absent, location: absent}
	if ev.ExpectedIndex != nil {
		k.index = *ev.ExpectedIndex
	}
	if ev.Location != nil {
		k.location = *ev.Location
	}
	return k
}

// PairEvents matches the Nth down of each key with its Nth up. The input must
// already be normalized. Presses that are never released are dropped, as are
// releases without a pending press. Pairs are returned ordered by press time.
func PairEvents(events []model.KeystrokeEvent) []Pair {
	pending := map[pairKey][]float64{}
	pairs := make([]Pair, 0, len(events)/2)
	for _, ev := range events {
		k := keyFor(ev)
		switch ev.Type {
		case model.KeyDown:
			pending[k] = append(pending[k], ev.T)
		case model.KeyUp:
			queue := pending[k]
			if len(queue) == 0 {
				continue
			}
			down := queue[0]
			if len(queue) == 1 {
				delete(pending, k)
			} else {
				pending[k] = queue[1:]
			}
			if ev.T < down {
				continue
			}
			pairs = append(pairs, Pair{Down: down, Up: ev.T})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Down != pairs[j].Down {
			return pairs[i].Down < pairs[j].Down
		}
		return pairs[i].Up < pairs[j].Up
	})
	return pairs
}
