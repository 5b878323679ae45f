package octets

// MarshalBytes appends uvarint(len) || b.
func (o *Octets) MarshalBytes(b []byte) {
	o.MarshalUvarint(uint32(len(b)))
	o.put(b...)
}

// UnmarshalBytes decodes uvarint(len) || bytes, returning a copy.
func (o *Octets) UnmarshalBytes() ([]byte, error) {
	n, err := o.UnmarshalUvarint()
	if err != nil {
		return nil, err
	}
	if err := o.need(int(n)); err != nil {
		return nil, err
	}
	b := o.take(int(n))
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// MarshalString appends uvarint(len) || utf8(s).
func (o *Octets) MarshalString(s string) {
	o.MarshalUvarint(uint32(len(s)))
	o.put([]byte(s)...)
}

// UnmarshalString decodes a length-prefixed UTF-8 string.
func (o *Octets) UnmarshalString() (string, error) {
	b, err := o.UnmarshalBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
