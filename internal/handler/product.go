package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/freshcart/internal/domain/product"
)

// ListProducts returns the full catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.Products.List(r.Context())
	if err != nil {
		h.internalError(w, r, "List products", err)
		return
	}
	writeSuccess(w, "", func(e *jx.Encoder) {
		e.FieldStart("products")
		e.ArrStart()
		for i := range list {
			h.encodeProduct(e, &list[i])
		}
		e.ArrEnd()
	})
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeFailure(w, http.StatusNotFound, "Product not found.")
		return
	}

	p, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeFailure(w, http.StatusNotFound, "Product not found.")
			return
		}
		h.internalError(w, r, "Get product", err)
		return
	}
	writeSuccess(w, "", func(e *jx.Encoder) {
		e.FieldStart("product")
		h.encodeProduct(e, p)
	})
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	money(e, p.Price)
	e.FieldStart("unit")
	e.Str(p.Unit)
	e.FieldStart("image")
	e.Str(h.resolveImageURL(p.Image))
	e.FieldStart("rating")
	money(e, p.Rating)
	e.FieldStart("reviews_count")
	e.Int(p.ReviewsCount)
	if p.Badge != "" {
		e.FieldStart("badge")
		e.Str(p.Badge)
	}
	e.FieldStart("created_at")
	e.Str(p.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

// resolveImageURL prepends ImageBaseURL to relative paths. Absolute URLs and
// empty paths are returned unchanged.
func (h *Handler) resolveImageURL(path string) string {
	if path == "" || h.cfg.ImageBaseURL == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(h.cfg.ImageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// internalError logs err and answers with the generic failure message.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
	writeFailure(w, http.StatusOK, msgGeneric)
}
