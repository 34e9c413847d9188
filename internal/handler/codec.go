package handler

import (
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

const maxBodySize = 1 << 20

var errMalformed = errors.New("malformed request body")

// writeJSON encodes an object body with the given fields writer.
func writeJSON(w http.ResponseWriter, status int, fields func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	fields(e)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeSuccess writes {"success":true,"message":...} followed by extra fields.
func writeSuccess(w http.ResponseWriter, message string, extra func(e *jx.Encoder)) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.FieldStart("success")
		e.Bool(true)
		if message != "" {
			e.FieldStart("message")
			e.Str(message)
		}
		if extra != nil {
			extra(e)
		}
	})
}

// writeFailure reports a declined operation. Business failures use 200 so
// clients branch on the success flag rather than the status code.
func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.FieldStart("success")
		e.Bool(false)
		e.FieldStart("message")
		e.Str(message)
	})
}

// decodeObject reads a JSON object body and calls field for each key.
func decodeObject(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(errMalformed, err.Error())
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		return errors.Wrap(errMalformed, err.Error())
	}
	return nil
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// decodeLooseInt accepts a JSON number or a numeric string. Fractional
// numbers are truncated toward zero; null decodes as zero. Values outside
// int64 are an error.
func decodeLooseInt(d *jx.Decoder) (int64, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return 0, err
		}
		v, err := decimal.NewFromString(n.String())
		if err != nil {
			return 0, err
		}
		v = v.Truncate(0)
		if v.LessThan(minInt64) || v.GreaterThan(maxInt64) {
			return 0, errors.Errorf("integer %s out of range", n)
		}
		return v.IntPart(), nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseInt(s, 10, 64)
	case jx.Null:
		return 0, d.Null()
	default:
		return 0, errors.Errorf("expected integer, got %s", d.Next())
	}
}

// decodeLooseDecimal accepts a JSON number or a numeric string.
func decodeLooseDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.Errorf("expected number, got %s", d.Next())
	}
}

// money writes a decimal as a JSON number with two fraction digits.
func money(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}
