package octets

import "testing"

func TestVarintRoundTrip(t *testing.T) {
	vals := []int64{0, 1, -1, 63, -64, 64, -65, 255, 256, -256,
		1 << 20, -(1 << 20), 1 << 40, -(1 << 40), MaxVarint52, MinVarint52}

	for _, v := range vals {
		o := New()
		o.MarshalVarint(v)
		r := Wrap(o.Bytes())
		got, err := r.UnmarshalVarint()
		if err != nil {
			t.Fatalf("unmarshal(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("roundtrip(%d) = %d", v, got)
		}
	}
}

func TestVarintClamp(t *testing.T) {
	o := New()
	o.MarshalVarint(MaxVarint52 + 1000)
	r := Wrap(o.Bytes())
	got, err := r.UnmarshalVarint()
	if err != nil {
		t.Fatal(err)
	}
	if got != MaxVarint52 {
		t.Fatalf("expected clamp to %d, got %d", MaxVarint52, got)
	}
}

func TestUvarintRoundTrip(t *testing.T) {
	vals := []uint32{0, 1, 127, 128, 16383, 16384, 2097151, 2097152,
		268435455, 268435456, 0xFFFFFFFF}

	for _, v := range vals {
		o := New()
		o.MarshalUvarint(v)
		r := Wrap(o.Bytes())
		got, err := r.UnmarshalUvarint()
		if err != nil {
			t.Fatalf("unmarshal(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("roundtrip(%d) = %d", v, got)
		}
	}
}

func TestFloatRoundTrip(t *testing.T) {
	o := New()
	o.MarshalFloat32(3.5)
	o.MarshalFloat64(-2.25)
	r := Wrap(o.Bytes())
	f32, err := r.UnmarshalFloat32()
	if err != nil || f32 != 3.5 {
		t.Fatalf("f32 = %v, %v", f32, err)
	}
	f64, err := r.UnmarshalFloat64()
	if err != nil || f64 != -2.25 {
		t.Fatalf("f64 = %v, %v", f64, err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	o := New()
	o.MarshalString("hello, table")
	o.MarshalBytes([]byte{1, 2, 3})
	r := Wrap(o.Bytes())
	s, err := r.UnmarshalString()
	if err != nil || s != "hello, table" {
		t.Fatalf("string = %q, %v", s, err)
	}
	b, err := r.UnmarshalBytes()
	if err != nil || len(b) != 3 {
		t.Fatalf("bytes = %v, %v", b, err)
	}
}

func TestFieldStreamSkipUnknown(t *testing.T) {
	o := New()
	o.WriteFieldHeader(1, KindInt)
	o.MarshalVarint(42)
	o.WriteFieldHeader(99, KindString) // unknown to the reader below
	o.MarshalString("ignored")
	o.WriteFieldHeader(2, KindInt)
	o.MarshalVarint(7)
	o.WriteFieldTerminator()

	r := Wrap(o.Bytes())
	var v1, v2 int64
	for {
		tag, kind, end, err := r.ReadFieldHeader()
		if err != nil {
			t.Fatal(err)
		}
		if end {
			break
		}
		switch tag {
		case 1:
			v1, _ = r.UnmarshalVarint()
		case 2:
			v2, _ = r.UnmarshalVarint()
		default:
			switch kind {
			case KindString:
				r.UnmarshalBytes()
			case KindInt:
				r.UnmarshalVarint()
			case KindBean:
				r.SkipBean()
			case KindVar:
				r.SkipVar()
			}
		}
	}
	if v1 != 42 || v2 != 7 {
		t.Fatalf("v1=%d v2=%d", v1, v2)
	}
}

func TestListContainer(t *testing.T) {
	o := New()
	o.WriteListHeader(ElemInt, 3)
	o.MarshalVarint(1)
	o.MarshalVarint(2)
	o.MarshalVarint(3)

	r := Wrap(o.Bytes())
	isMap, ek, _, n, err := r.ReadVarHeader()
	if err != nil || isMap || ek != ElemInt || n != 3 {
		t.Fatalf("header: %v %v %v %v", isMap, ek, n, err)
	}
	sum := int64(0)
	for i := 0; i < n; i++ {
		v, err := r.UnmarshalVarint()
		if err != nil {
			t.Fatal(err)
		}
		sum += v
	}
	if sum != 6 {
		t.Fatalf("sum = %d", sum)
	}
}
