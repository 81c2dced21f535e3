// Package handler contains the HTTP layer: route definitions, request
// validation, and status-code mapping. It is pure glue over the domain
// services.
package handler

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/openshelf/shop-api/internal/domain/order"
	"github.com/openshelf/shop-api/internal/domain/product"
	"github.com/openshelf/shop-api/internal/objectstore"
)

// Handler routes API requests to the domain services.
type Handler struct {
	products *product.Service
	orders   *order.Service
	store    objectstore.Store
	lg       *zap.Logger
}

// New constructs a Handler with the required dependencies.
func New(products *product.Service, orders *order.Service, store objectstore.Store, lg *zap.Logger) *Handler {
	return &Handler{
		products: products,
		orders:   orders,
		store:    store,
		lg:       lg,
	}
}

// Routes returns the API router, to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/search", h.searchProducts)
		r.Post("/", h.createProduct)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
		r.Patch("/{id}/stock", h.adjustStock)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/number/{orderNumber}", h.getOrderByNumber)
		r.Get("/status/{status}", h.listOrdersByStatus)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}/status", h.updateOrderStatus)
		r.Post("/{id}/cancel", h.cancelOrder)
	})

	r.Route("/upload", func(r chi.Router) {
		r.Post("/image", h.uploadImage)
		r.Delete("/image", h.deleteImage)
		r.Get("/status", h.storageStatus)
		r.Get("/image/presigned", h.presignedURL)
		r.Get("/image/{folder}/{filename}", h.serveImage)
	})

	r.Post("/admin/reindex-products", h.reindexProducts)

	return r
}
