package sagachain

import (
	"github.com/tidwall/btree"
)

// Args is the string-keyed argument mapping handed to actions and compensations.
//
// The same type carries step construction arguments, the running arguments of an
// execution and the result mapping an action returns.
type Args map[string]any

// Clone returns a shallow copy of the mapping. It never returns nil.
func (a Args) Clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Keys returns the argument names in sorted order.
func (a Args) Keys() []string {
	var keys btree.Set[string]
	for k := range a {
		keys.Insert(k)
	}
	return keys.Keys()
}

// MergeArgs merges the given layers into a fresh mapping. Later layers override
// same-named keys of earlier ones; none of the inputs are modified.
func MergeArgs(layers ...Args) Args {
	size := 0
	for _, layer := range layers {
		size += len(layer)
	}

	out := make(Args, size)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Lookup retrieves an argument with type assertion.
// Returns the typed value and true if found and the type matches, or the zero
// value and false otherwise.
func Lookup[V any](args Args, key string) (V, bool) {
	var zero V
	value, found := args[key]
	if !found {
		return zero, false
	}

	typed, ok := value.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}
