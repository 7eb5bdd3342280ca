package models

import "fmt"

// SignalKey identifies one of the seven boolean indicator flags
type SignalKey string

const (
	SignalKey1  SignalKey = "signal_1"
	SignalKey2  SignalKey = "signal_2"
	SignalKey3  SignalKey = "signal_3"
	SignalKey4  SignalKey = "signal_4"
	SignalKey5  SignalKey = "signal_5"
	SignalKey6  SignalKey = "signal_6"
	// CycleEndKey resets every other flag's active state
	CycleEndKey SignalKey = "signal_7"
)

// TotalPossibleSignals is the number of trigger keys counted per timeframe
const TotalPossibleSignals = 6

// triggerKeys are the edge-detected keys in ascending numeric order
var triggerKeys = []SignalKey{SignalKey1, SignalKey2, SignalKey3, SignalKey4, SignalKey5, SignalKey6}

var signalAccessors = map[SignalKey]func(*SignalBar) bool{
	SignalKey1:  func(b *SignalBar) bool { return b.Signal1 },
	SignalKey2:  func(b *SignalBar) bool { return b.Signal2 },
	SignalKey3:  func(b *SignalBar) bool { return b.Signal3 },
	SignalKey4:  func(b *SignalBar) bool { return b.Signal4 },
	SignalKey5:  func(b *SignalBar) bool { return b.Signal5 },
	SignalKey6:  func(b *SignalBar) bool { return b.Signal6 },
	CycleEndKey: func(b *SignalBar) bool { return b.Signal7 },
}

// TriggerKeys returns signal_1..signal_6 in ascending numeric order
func TriggerKeys() []SignalKey {
	out := make([]SignalKey, len(triggerKeys))
	copy(out, triggerKeys)
	return out
}

// Accessor returns the flag getter for k. Callers resolve accessors once, up front.
func Accessor(k SignalKey) (func(*SignalBar) bool, error) {
	get, ok := signalAccessors[k]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignalKey, k)
	}
	return get, nil
}
