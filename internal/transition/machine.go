// Package transition turns a per-timeframe series of signal bars into
// edge-triggered events with cycle-end resets.
package transition

import (
	"fmt"
	"sort"

	"github.com/mohamedkhairy/signal-screener/internal/models"
)

// flag binds a tracked key to its accessor, resolved once at construction
type flag struct {
	key models.SignalKey
	get func(*models.SignalBar) bool
}

// Machine detects rising edges of the tracked keys. It holds no scan state and
// is safe for concurrent use; each Run owns its own active set.
type Machine struct {
	flags []flag
}

// NewMachine builds a machine tracking keys in the given order. The cycle-end
// key is handled separately and may not appear in keys.
func NewMachine(keys []models.SignalKey) (*Machine, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no signal keys to track")
	}
	seen := make(map[models.SignalKey]bool, len(keys))
	flags := make([]flag, 0, len(keys))
	for _, k := range keys {
		if k == models.CycleEndKey {
			return nil, fmt.Errorf("cycle-end key %q cannot be tracked as a trigger", k)
		}
		if seen[k] {
			return nil, fmt.Errorf("signal key %q listed twice", k)
		}
		get, err := models.Accessor(k)
		if err != nil {
			return nil, err
		}
		seen[k] = true
		flags = append(flags, flag{key: k, get: get})
	}
	return &Machine{flags: flags}, nil
}

// Default tracks signal_1..signal_6 in ascending numeric order
func Default() *Machine {
	m, err := NewMachine(models.TriggerKeys())
	if err != nil {
		panic(err)
	}
	return m
}

// Run scans one symbol's bars for one timeframe and returns one event per bar,
// oldest first. Input order is not trusted; bars are sorted by date here.
//
// A cycle-end bar clears the active set and reports only the cycle-end key,
// even when other flags are also true on that bar.
func (m *Machine) Run(bars []*models.SignalBar) ([]models.TriggerEvent, error) {
	if len(bars) == 0 {
		return []models.TriggerEvent{}, nil
	}

	ordered, err := chronological(bars)
	if err != nil {
		return nil, err
	}

	active := make(map[models.SignalKey]struct{}, len(m.flags))
	events := make([]models.TriggerEvent, 0, len(ordered))

	for _, bar := range ordered {
		date := models.TradingDate(bar.Date)

		if bar.IsCycleEnd() {
			clear(active)
			events = append(events, models.TriggerEvent{
				Date:      date,
				Triggered: []models.SignalKey{models.CycleEndKey},
			})
			continue
		}

		triggered := []models.SignalKey{}
		for _, f := range m.flags {
			_, wasActive := active[f.key]
			isActive := f.get(bar)
			switch {
			case isActive && !wasActive:
				triggered = append(triggered, f.key)
				active[f.key] = struct{}{}
			case !isActive && wasActive:
				delete(active, f.key)
			}
		}

		events = append(events, models.TriggerEvent{Date: date, Triggered: triggered})
	}

	return events, nil
}

// chronological returns a date-ascending copy of bars after checking they form
// a single series with unique dates
func chronological(bars []*models.SignalBar) ([]*models.SignalBar, error) {
	symbol, timeframe := bars[0].Symbol, bars[0].Timeframe
	for _, b := range bars[1:] {
		if b.Symbol != symbol || b.Timeframe != timeframe {
			return nil, models.ErrMixedSeries
		}
	}

	ordered := make([]*models.SignalBar, len(bars))
	copy(ordered, bars)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})

	for i := 1; i < len(ordered); i++ {
		if ordered[i].Date.Equal(ordered[i-1].Date) {
			return nil, fmt.Errorf("%w: %s %s %s", models.ErrDuplicateBar,
				symbol, timeframe, models.TradingDate(ordered[i].Date))
		}
	}
	return ordered, nil
}
