package record

import (
	"github.com/google/uuid"

	"github.com/shoaldb/keel/octets"
)

// Account is a hand-written stand-in for what the code generator (§6, out of
// scope here) would otherwise produce from a schema file: a concrete Bean
// implementation exercising INT, STRING and VAR (string list) fields,
// including a UUID-valued string field. It has no BEAN-kind field.
type Account struct {
	ID      int64
	Name    string
	Balance int64
	Session uuid.UUID
	Tags    []string
}

const accountTypeID = 1001

func (a *Account) TypeID() int   { return accountTypeID }
func (a *Account) InitSize() int { return 32 }
func (a *Account) MaxSize() int  { return 4096 }

func (a *Account) Marshal(o *octets.Octets) {
	o.WriteFieldHeader(1, octets.KindInt)
	o.MarshalVarint(a.ID)

	o.WriteFieldHeader(2, octets.KindString)
	o.MarshalString(a.Name)

	o.WriteFieldHeader(3, octets.KindInt)
	o.MarshalVarint(a.Balance)

	o.WriteFieldHeader(4, octets.KindString)
	o.MarshalString(a.Session.String())

	o.WriteFieldHeader(5, octets.KindVar)
	o.WriteListHeader(octets.ElemString, len(a.Tags))
	for _, tag := range a.Tags {
		o.MarshalString(tag)
	}

	o.WriteFieldTerminator()
}

func (a *Account) Unmarshal(o *octets.Octets) error {
	for {
		tag, kind, end, err := o.ReadFieldHeader()
		if err != nil {
			return err
		}
		if end {
			return nil
		}
		switch tag {
		case 1:
			v, err := o.UnmarshalVarint()
			if err != nil {
				return err
			}
			a.ID = v
		case 2:
			s, err := o.UnmarshalString()
			if err != nil {
				return err
			}
			a.Name = s
		case 3:
			v, err := o.UnmarshalVarint()
			if err != nil {
				return err
			}
			a.Balance = v
		case 4:
			s, err := o.UnmarshalString()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(s)
			if err != nil {
				return err
			}
			a.Session = id
		case 5:
			isMap, elemKind, _, n, err := o.ReadVarHeader()
			if err != nil {
				return err
			}
			if isMap || elemKind != octets.ElemString {
				return octets.ErrBadFormat
			}
			tags := make([]string, 0, n)
			for i := 0; i < n; i++ {
				s, err := o.UnmarshalString()
				if err != nil {
					return err
				}
				tags = append(tags, s)
			}
			a.Tags = tags
		default:
			if err := skipField(o, kind); err != nil {
				return err
			}
		}
	}
}

// skipField tolerates an unrecognized tag (§8): a future schema revision may
// add fields this binary does not know about yet.
func skipField(o *octets.Octets, kind octets.Kind) error {
	switch kind {
	case octets.KindInt:
		_, err := o.UnmarshalVarint()
		return err
	case octets.KindString:
		_, err := o.UnmarshalString()
		return err
	case octets.KindBean:
		return o.SkipBean()
	case octets.KindVar:
		return o.SkipVar()
	}
	return octets.ErrBadFormat
}

func (a *Account) Create() *Account { return &Account{Session: uuid.New()} }

func (a *Account) Clone() *Account {
	c := &Account{ID: a.ID, Name: a.Name, Balance: a.Balance, Session: a.Session}
	if a.Tags != nil {
		c.Tags = append([]string(nil), a.Tags...)
	}
	return c
}

func (a *Account) Equal(other *Account) bool {
	if other == nil {
		return false
	}
	if a.ID != other.ID || a.Name != other.Name || a.Balance != other.Balance || a.Session != other.Session {
		return false
	}
	if len(a.Tags) != len(other.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != other.Tags[i] {
			return false
		}
	}
	return true
}

var _ Bean[*Account] = (*Account)(nil)
