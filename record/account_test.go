package record

import (
	"testing"

	"github.com/google/uuid"

	"github.com/shoaldb/keel/octets"
)

func TestAccountRoundTrip(t *testing.T) {
	a := &Account{
		ID:      7,
		Name:    "alice",
		Balance: 1000,
		Session: uuid.New(),
		Tags:    []string{"vip", "beta"},
	}

	data := Encode[*Account](a)
	got, err := Decode[*Account](&Account{}, data)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(got) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, a)
	}
}

// TestAccountSkipsUnknownTag simulates decoding a value written by a future
// schema revision that appended an extra field this binary does not know
// about (§8): the unknown tag must be skipped, not an error.
func TestAccountSkipsUnknownTag(t *testing.T) {
	o := octets.New()
	o.Marshal1(Format)

	o.WriteFieldHeader(1, octets.KindInt)
	o.MarshalVarint(42)
	o.WriteFieldHeader(2, octets.KindString)
	o.MarshalString("carol")
	o.WriteFieldHeader(3, octets.KindInt)
	o.MarshalVarint(9)
	o.WriteFieldHeader(4, octets.KindString)
	o.MarshalString(uuid.New().String())

	// Unknown future field: tag 99, a BEAN-kind sub-record the decoder has
	// no schema for, followed by its own nested terminator.
	o.WriteFieldHeader(99, octets.KindBean)
	o.WriteFieldHeader(1, octets.KindInt)
	o.MarshalVarint(123)
	o.WriteFieldTerminator()

	o.WriteFieldTerminator()

	got, err := Decode[*Account](&Account{}, o.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 42 || got.Name != "carol" || got.Balance != 9 {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}
