package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/auth"
	"github.com/xenking/freshcart/internal/domain/coupon"
	"github.com/xenking/freshcart/internal/domain/session"
)

// GetCart returns what the checkout page needs: the shopper's addresses, the
// staged coupon if it is still valid, and pending notices. A staged coupon
// that has become invalid is dropped.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := sessionState(ctx)

	var staged *coupon.Coupon
	if code, ok := st.Peek(); ok {
		c, err := h.Coupons.Resolve(ctx, code)
		switch {
		case err == nil:
			staged = c
		case errors.Is(err, coupon.ErrNotFound), errors.Is(err, coupon.ErrIneligible), errors.Is(err, coupon.ErrEmptyCode):
			st.Clear()
		default:
			h.internalError(w, r, "Resolve staged coupon", err)
			return
		}
	}

	var addrs []addressView
	if id, ok := auth.FromContext(ctx); ok {
		list, err := h.Addresses.List(ctx, id.OwnerID)
		if err != nil {
			h.internalError(w, r, "List addresses", err)
			return
		}
		for _, a := range list {
			addrs = append(addrs, addressView(a))
		}
	}

	notices := st.TakeNotices()
	if err := h.saveSession(ctx); err != nil {
		zctx.From(ctx).Warn("Save session", zap.Error(err))
	}

	writeSuccess(w, "", func(e *jx.Encoder) {
		e.FieldStart("coupon")
		if staged != nil {
			h.encodeCoupon(e, staged)
		} else {
			e.Null()
		}
		e.FieldStart("addresses")
		e.ArrStart()
		for _, a := range addrs {
			a.encode(e)
		}
		e.ArrEnd()
		e.FieldStart("notices")
		encodeNotices(e, notices)
	})
}

// ApplyCoupon validates a manually entered code against the declared
// subtotal and stages it. Usage counters are not touched.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		code     string
		subtotal decimal.Decimal
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Str()
		case "subtotal":
			subtotal, err = decodeLooseDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeFailure(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	c, err := h.Coupons.Check(ctx, code, subtotal)
	if err != nil {
		var minErr *coupon.MinimumOrderError
		switch {
		case errors.Is(err, coupon.ErrEmptyCode):
			writeFailure(w, http.StatusOK, msgCouponEmpty)
		case errors.Is(err, coupon.ErrNotFound):
			writeFailure(w, http.StatusOK, msgCouponNotFound)
		case errors.Is(err, coupon.ErrIneligible):
			writeFailure(w, http.StatusOK, msgCouponIneligible)
		case errors.As(err, &minErr):
			writeFailure(w, http.StatusOK, fmt.Sprintf(msgCouponMinimum, minErr.Minimum.StringFixed(0)))
		default:
			h.internalError(w, r, "Apply coupon", err)
		}
		return
	}

	sessionState(ctx).Stage(c.Code)
	if err := h.saveSession(ctx); err != nil {
		h.internalError(w, r, "Save session", err)
		return
	}

	writeSuccess(w, fmt.Sprintf(msgCouponApplied, c.Code), func(e *jx.Encoder) {
		e.FieldStart("coupon")
		h.encodeCoupon(e, c)
	})
}

// RemoveCoupon clears the staged coupon. It succeeds whether or not one was
// staged.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sessionState(ctx).Clear() {
		if err := h.saveSession(ctx); err != nil {
			h.internalError(w, r, "Save session", err)
			return
		}
	}
	writeSuccess(w, msgCouponRemoved, nil)
}

// ApplyAffiliate stages the coupon from a promotional link and always
// redirects to the storefront, flashing the outcome.
func (h *Handler) ApplyAffiliate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := sessionState(ctx)
	lg := zctx.From(ctx)

	code := chi.URLParam(r, "code")
	c, err := h.Coupons.Resolve(ctx, code)
	switch {
	case err == nil:
		st.Stage(c.Code)
		if c.Affiliate && c.AffiliateName != "" {
			st.Flash(session.LevelSuccess, fmt.Sprintf(msgAffiliateApplied, c.AffiliateName, c.Code))
		} else {
			st.Flash(session.LevelSuccess, fmt.Sprintf(msgCouponApplied, c.Code))
		}
		lg.Info("Referral coupon staged", zap.String("coupon", c.Code), zap.String("affiliate", c.AffiliateName))
	case errors.Is(err, coupon.ErrIneligible):
		st.Flash(session.LevelError, msgAffiliateIneligible)
	case errors.Is(err, coupon.ErrNotFound), errors.Is(err, coupon.ErrEmptyCode):
		st.Flash(session.LevelError, msgAffiliateNotFound)
	default:
		lg.Error("Resolve referral coupon", zap.String("coupon", code), zap.Error(err))
		st.Flash(session.LevelError, msgGeneric)
	}

	if err := h.saveSession(ctx); err != nil {
		lg.Warn("Save session", zap.Error(err))
	}
	http.Redirect(w, r, h.cfg.HomePath, http.StatusFound)
}

// encodeCoupon writes the coupon summary; affiliate coupons also carry their
// shareable referral link.
func (h *Handler) encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	s := c.Summary()
	e.ObjStart()
	e.FieldStart("code")
	e.Str(s.Code)
	e.FieldStart("type")
	e.Str(string(s.Kind))
	e.FieldStart("value")
	money(e, s.Value)
	e.FieldStart("min_order_amount")
	money(e, s.MinOrder)
	if u := c.PromoURL(h.cfg.SiteURL); u != "" {
		e.FieldStart("promo_url")
		e.Str(u)
	}
	e.ObjEnd()
}

func encodeNotices(e *jx.Encoder, notices []session.Notice) {
	e.ArrStart()
	for _, n := range notices {
		e.ObjStart()
		e.FieldStart("level")
		e.Str(string(n.Level))
		e.FieldStart("text")
		e.Str(n.Text)
		e.ObjEnd()
	}
	e.ArrEnd()
}
