package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/address"
	"github.com/xenking/freshcart/internal/domain/order"
)

const idempotencyHeader = "Idempotency-Key"

type placeOrderBody struct {
	lines      []order.LineRequest
	addressID  int64
	couponCode string
	couponSet  bool
}

func decodePlaceOrder(r *http.Request) (placeOrderBody, error) {
	var b placeOrderBody
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "cart", "items":
			return d.Arr(func(d *jx.Decoder) error {
				var l order.LineRequest
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "id", "product_id":
						v, err := decodeLooseInt(d)
						l.ProductID = v
						return err
					case "quantity":
						v, err := decodeLooseInt(d)
						l.Quantity = int(v)
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				b.lines = append(b.lines, l)
				return nil
			})
		case "address_id":
			v, err := decodeLooseInt(d)
			b.addressID = v
			return err
		case "coupon_code":
			b.couponSet = true
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			b.couponCode = s
			return err
		default:
			return d.Skip()
		}
	})
	return b, err
}

// PlaceOrder reprices the submitted cart and commits the order. Without an
// explicit coupon_code the session's staged coupon is used.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := owner(r)

	body, err := decodePlaceOrder(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	st := sessionState(ctx)
	code := body.couponCode
	if !body.couponSet {
		code, _ = st.Peek()
	}

	var idemKey string
	if k := strings.TrimSpace(r.Header.Get(idempotencyHeader)); k != "" && h.Idempotency != nil {
		idemKey = strconv.FormatInt(ownerID, 10) + ":" + k
		ok, err := h.Idempotency.Claim(ctx, idemKey)
		if err != nil {
			h.internalError(w, r, "Claim idempotency key", err)
			return
		}
		if !ok {
			writeFailure(w, http.StatusOK, msgOrderDuplicate)
			return
		}
	}

	res, err := h.Orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		OwnerID:    ownerID,
		AddressID:  body.addressID,
		Lines:      body.lines,
		CouponCode: code,
	})
	if err != nil {
		if idemKey != "" {
			if rerr := h.Idempotency.Release(ctx, idemKey); rerr != nil {
				zctx.From(ctx).Warn("Release idempotency key", zap.Error(rerr))
			}
		}
		h.orderFailure(w, r, err)
		return
	}

	if st.Clear() {
		if err := h.saveSession(ctx); err != nil {
			zctx.From(ctx).Warn("Save session", zap.Error(err))
		}
	}

	o := res.Order
	writeSuccess(w, msgOrderPlaced, func(e *jx.Encoder) {
		e.FieldStart("order_id")
		e.Int64(o.ID)
		e.FieldStart("order")
		encodeOrder(e, o)
	})
}

func (h *Handler) orderFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound *order.ProductNotFoundError
		quantity *order.InvalidQuantityError
	)
	switch {
	case errors.Is(err, address.ErrNotFound), errors.Is(err, address.ErrForbidden):
		writeFailure(w, http.StatusOK, msgAddressNotFound)
	case errors.As(err, &notFound):
		writeFailure(w, http.StatusOK, msgProductNotFound)
	case errors.Is(err, order.ErrEmptyItems):
		writeFailure(w, http.StatusOK, msgOrderEmpty)
	case errors.As(err, &quantity):
		writeFailure(w, http.StatusOK, msgOrderQuantity)
	default:
		h.internalError(w, r, "Place order", err)
	}
}

// ListOrders returns the caller's order history.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.ListOrders(r.Context(), owner(r))
	if err != nil {
		h.internalError(w, r, "List orders", err)
		return
	}
	writeSuccess(w, "", func(e *jx.Encoder) {
		e.FieldStart("orders")
		e.ArrStart()
		for i := range list {
			encodeOrder(e, &list[i])
		}
		e.ArrEnd()
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("address_id")
	if o.AddressID != nil {
		e.Int64(*o.AddressID)
	} else {
		e.Null()
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		if it.ProductID != nil {
			e.Int64(*it.ProductID)
		} else {
			e.Null()
		}
		e.FieldStart("name")
		e.Str(it.ProductName)
		e.FieldStart("price")
		money(e, it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("cost")
		money(e, it.Cost())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	money(e, o.Subtotal)
	e.FieldStart("delivery_fee")
	money(e, o.DeliveryFee)
	e.FieldStart("discount")
	money(e, o.Discount)
	e.FieldStart("total")
	money(e, o.Total)
	e.FieldStart("coupon_code")
	if o.CouponCode != "" {
		e.Str(o.CouponCode)
	} else {
		e.Null()
	}
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
