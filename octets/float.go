package octets

import "math"

// MarshalFloat32 appends a length-explicit 4-byte little-endian float.
func (o *Octets) MarshalFloat32(v float32) {
	bits := math.Float32bits(v)
	o.put(4, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}

// UnmarshalFloat32 decodes a 4-byte little-endian float.
func (o *Octets) UnmarshalFloat32() (float32, error) {
	if err := o.need(1); err != nil {
		return 0, err
	}
	n := o.take(1)[0]
	if n != 4 {
		return 0, ErrBadFormat
	}
	if err := o.need(4); err != nil {
		return 0, err
	}
	bs := o.take(4)
	bits := uint32(bs[0]) | uint32(bs[1])<<8 | uint32(bs[2])<<16 | uint32(bs[3])<<24
	return math.Float32frombits(bits), nil
}

// MarshalFloat64 appends a length-explicit 8-byte little-endian float.
func (o *Octets) MarshalFloat64(v float64) {
	bits := math.Float64bits(v)
	o.put(8,
		byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24),
		byte(bits>>32), byte(bits>>40), byte(bits>>48), byte(bits>>56))
}

// UnmarshalFloat64 decodes an 8-byte little-endian float.
func (o *Octets) UnmarshalFloat64() (float64, error) {
	if err := o.need(1); err != nil {
		return 0, err
	}
	n := o.take(1)[0]
	if n != 8 {
		return 0, ErrBadFormat
	}
	if err := o.need(8); err != nil {
		return 0, err
	}
	bs := o.take(8)
	var bits uint64
	for i := 7; i >= 0; i-- {
		bits = bits<<8 | uint64(bs[i])
	}
	return math.Float64frombits(bits), nil
}
