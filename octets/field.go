package octets

// Kind is the wire type of a tagged record field.
type Kind byte

const (
	KindInt    Kind = 0
	KindString Kind = 1
	KindBean   Kind = 2
	KindVar    Kind = 3
)

// ElemKind is the element type carried by a VAR container (list or map).
type ElemKind byte

const (
	ElemInt    ElemKind = 0
	ElemString ElemKind = 1
	ElemBean   ElemKind = 2
	elemReserved ElemKind = 3
	ElemFloat32 ElemKind = 4
	ElemFloat64 ElemKind = 5
)

// WriteFieldHeader appends the field header uvarint(tag<<2|kind).
func (o *Octets) WriteFieldHeader(tag int, kind Kind) {
	o.MarshalUvarint(uint32(tag)<<2 | uint32(kind))
}

// WriteFieldTerminator appends the zero byte that ends a record's field stream.
func (o *Octets) WriteFieldTerminator() {
	o.put(0)
}

// ReadFieldHeader decodes the next field header. A header value of zero
// signals the end of the record (end=true, tag and kind are meaningless).
func (o *Octets) ReadFieldHeader() (tag int, kind Kind, end bool, err error) {
	h, err := o.UnmarshalUvarint()
	if err != nil {
		return 0, 0, false, err
	}
	if h == 0 {
		return 0, 0, true, nil
	}
	return int(h >> 2), Kind(h & 0x3), false, nil
}

// SkipVar discards the payload of a VAR-kind field without interpreting it,
// used to tolerate unknown tags while decoding (§8).
func (o *Octets) SkipVar() error {
	hdr, err := o.readByte()
	if err != nil {
		return err
	}
	if hdr&0x80 != 0 {
		// map: key_kind<<3|value_kind
		keyKind := ElemKind((hdr >> 3) & 0x7)
		valKind := ElemKind(hdr & 0x7)
		n, err := o.UnmarshalUvarint()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if err := o.skipElem(keyKind); err != nil {
				return err
			}
			if err := o.skipElem(valKind); err != nil {
				return err
			}
		}
		return nil
	}

	elemKind := ElemKind(hdr)
	n, err := o.UnmarshalUvarint()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if err := o.skipElem(elemKind); err != nil {
			return err
		}
	}
	return nil
}

func (o *Octets) skipElem(ek ElemKind) error {
	switch ek {
	case ElemInt:
		_, err := o.UnmarshalVarint()
		return err
	case ElemString:
		_, err := o.UnmarshalBytes()
		return err
	case ElemBean:
		return o.SkipBean()
	case ElemFloat32:
		_, err := o.UnmarshalFloat32()
		return err
	case ElemFloat64:
		_, err := o.UnmarshalFloat64()
		return err
	default:
		return ErrBadFormat
	}
}

// SkipBean discards an entire nested record's tagged field stream without
// interpreting its fields, used when decoding a known outer tag whose inner
// bean type is not registered locally.
func (o *Octets) SkipBean() error {
	for {
		_, kind, end, err := o.ReadFieldHeader()
		if err != nil {
			return err
		}
		if end {
			return nil
		}
		switch kind {
		case KindInt:
			if _, err := o.UnmarshalVarint(); err != nil {
				return err
			}
		case KindString:
			if _, err := o.UnmarshalBytes(); err != nil {
				return err
			}
		case KindBean:
			if err := o.SkipBean(); err != nil {
				return err
			}
		case KindVar:
			if err := o.SkipVar(); err != nil {
				return err
			}
		default:
			return ErrBadFormat
		}
	}
}

func (o *Octets) readByte() (byte, error) {
	if err := o.need(1); err != nil {
		return 0, err
	}
	return o.take(1)[0], nil
}

// WriteListHeader appends a VAR sub-header for a homogeneous list of elemKind
// with n elements.
func (o *Octets) WriteListHeader(elemKind ElemKind, n int) {
	o.put(byte(elemKind))
	o.MarshalUvarint(uint32(n))
}

// WriteMapHeader appends a VAR sub-header for a homogeneous map with the
// given key/value element kinds and n entries.
func (o *Octets) WriteMapHeader(keyKind, valKind ElemKind, n int) {
	o.put(0x80 | byte(keyKind)<<3 | byte(valKind))
	o.MarshalUvarint(uint32(n))
}

// ReadVarHeader decodes a VAR sub-header, reporting whether it is a map and
// the element kind(s) plus entry count.
func (o *Octets) ReadVarHeader() (isMap bool, keyKind, valKind ElemKind, n int, err error) {
	hdr, err := o.readByte()
	if err != nil {
		return false, 0, 0, 0, err
	}
	cnt, err := o.UnmarshalUvarint()
	if err != nil {
		return false, 0, 0, 0, err
	}
	if hdr&0x80 != 0 {
		return true, ElemKind((hdr >> 3) & 0x7), ElemKind(hdr & 0x7), int(cnt), nil
	}
	if hdr > 5 {
		return false, 0, 0, 0, ErrBadFormat
	}
	return false, ElemKind(hdr), 0, int(cnt), nil
}
