// Package record defines the contract a generated record type must satisfy
// (§6) and the save-state machine shared by every cached record (§3).
package record

import "github.com/shoaldb/keel/octets"

// SaveState tracks where a record instance sits relative to the table cache.
type SaveState int

const (
	// Unmanaged: a freshly constructed instance, not yet installed in any table.
	Unmanaged SaveState = 0
	// Shared: the canonical cached instance for its key, must not be mutated directly.
	Shared SaveState = 1
	// Dirty: queued in the modified-map awaiting flush.
	Dirty SaveState = 2
)

// Bean is the contract a generated record type implements: a stable type id,
// size hints for buffer pre-allocation, marshal/unmarshal against the tagged
// field-stream codec, and the value semantics Table needs (fresh-instance
// construction, deep copy, structural equality). It has no ordering method.
type Bean[V any] interface {
	TypeID() int
	InitSize() int
	MaxSize() int
	Marshal(o *octets.Octets)
	Unmarshal(o *octets.Octets) error
	Create() V
	Clone() V
	Equal(other V) bool
}

// Format is the single current on-disk value format byte (§6).
const Format byte = 0x00

// Encode writes the full stored value: format byte || tagged field stream.
func Encode[V any](b Bean[V]) []byte {
	o := octets.New()
	o.Marshal1(Format)
	b.Marshal(o)
	return o.Bytes()
}

// Decode parses a stored value into a fresh instance produced by stub.Create().
func Decode[V any](stub Bean[V], data []byte) (V, error) {
	o := octets.Wrap(data)
	format, err := o.Unmarshal1()
	if err != nil {
		var zero V
		return zero, err
	}
	if format != Format {
		var zero V
		return zero, octets.ErrBadFormat
	}
	v := stub.Create()
	bean, ok := any(v).(Bean[V])
	if !ok {
		var zero V
		return zero, octets.ErrBadFormat
	}
	if err := bean.Unmarshal(o); err != nil {
		var zero V
		return zero, err
	}
	return v, nil
}
