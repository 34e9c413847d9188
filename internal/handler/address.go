package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/freshcart/internal/domain/address"
)

// ListAddresses returns the caller's saved addresses, default first.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.Addresses.List(r.Context(), owner(r))
	if err != nil {
		h.internalError(w, r, "List addresses", err)
		return
	}
	writeSuccess(w, "", func(e *jx.Encoder) {
		e.FieldStart("addresses")
		e.ArrStart()
		for _, a := range list {
			addressView(a).encode(e)
		}
		e.ArrEnd()
	})
}

// AddAddress saves a new shipping address for the caller.
func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var a address.Address
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "full_name":
			a.FullName, err = d.Str()
		case "phone_number":
			a.Phone, err = d.Str()
		case "street_address":
			a.Street, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "state":
			a.State, err = d.Str()
		case "pincode":
			a.Pincode, err = decodeLooseString(d)
		case "is_default":
			a.IsDefault, err = decodeLooseBool(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeFailure(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	saved, err := h.Addresses.Add(r.Context(), owner(r), a)
	if err != nil {
		var missing *address.MissingFieldError
		if errors.As(err, &missing) {
			writeFailure(w, http.StatusOK, fmt.Sprintf(msgAddressFieldEmpty, missing.Field))
			return
		}
		h.internalError(w, r, "Add address", err)
		return
	}

	writeSuccess(w, msgAddressAdded, func(e *jx.Encoder) {
		e.FieldStart("address")
		addressView(*saved).encode(e)
	})
}

type addressView address.Address

func (a addressView) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(a.ID)
	e.FieldStart("full_name")
	e.Str(a.FullName)
	e.FieldStart("phone_number")
	e.Str(a.Phone)
	e.FieldStart("street_address")
	e.Str(a.Street)
	e.FieldStart("city")
	e.Str(a.City)
	e.FieldStart("state")
	e.Str(a.State)
	e.FieldStart("pincode")
	e.Str(a.Pincode)
	e.FieldStart("is_default")
	e.Bool(a.IsDefault)
	e.FieldStart("created_at")
	e.Str(a.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

// decodeLooseString accepts a string or a number, returning its text.
func decodeLooseString(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return d.Str()
	}
}

// decodeLooseBool accepts true/false as well as the form-style "on", "true"
// and "1" strings.
func decodeLooseBool(d *jx.Decoder) (bool, error) {
	switch d.Next() {
	case jx.Bool:
		return d.Bool()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "on", "true", "1", "yes":
			return true, nil
		}
		return false, nil
	case jx.Number:
		v, err := decodeLooseInt(d)
		return v != 0, err
	case jx.Null:
		return false, d.Null()
	default:
		return false, errors.Errorf("expected boolean, got %s", d.Next())
	}
}
