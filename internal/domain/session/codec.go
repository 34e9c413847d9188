package session

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Encode serializes s for a Store.
func Encode(s *State) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	if s.Coupon != "" {
		e.FieldStart("coupon")
		e.Str(s.Coupon)
	}
	if len(s.Notices) > 0 {
		e.FieldStart("notices")
		e.ArrStart()
		for _, n := range s.Notices {
			e.ObjStart()
			e.FieldStart("level")
			e.Str(string(n.Level))
			e.FieldStart("text")
			e.Str(n.Text)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()

	return append([]byte(nil), e.Bytes()...)
}

// Decode parses data produced by Encode. Unknown fields are ignored.
func Decode(data []byte) (*State, error) {
	s := &State{}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "coupon":
			v, err := d.Str()
			s.Coupon = v
			return err
		case "notices":
			return d.Arr(func(d *jx.Decoder) error {
				var n Notice
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "level":
						v, err := d.Str()
						n.Level = Level(v)
						return err
					case "text":
						v, err := d.Str()
						n.Text = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				s.Notices = append(s.Notices, n)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return s, nil
}
