package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openshelf/shop-api/internal/domain/order"
	"github.com/openshelf/shop-api/internal/domain/product"
	"github.com/openshelf/shop-api/internal/objectstore"
	"github.com/openshelf/shop-api/internal/search"
)

// memProducts is an in-memory product.Repository.
type memProducts struct {
	rows   map[int64]product.Product
	nextID int64
}

func newMemProducts(rows ...product.Product) *memProducts {
	m := &memProducts{rows: make(map[int64]product.Product), nextID: 1}
	for _, p := range rows {
		m.rows[p.ID] = p
		if p.ID >= m.nextID {
			m.nextID = p.ID + 1
		}
	}
	return m
}

func (m *memProducts) List(context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, p)
	}
	return out, nil
}

func (m *memProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *memProducts) SearchByName(_ context.Context, name string) ([]product.Product, error) {
	var out []product.Product
	for _, p := range m.rows {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) Create(_ context.Context, p *product.Product) error {
	p.ID = m.nextID
	m.nextID++
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.rows[p.ID] = *p
	return nil
}

func (m *memProducts) Update(_ context.Context, p *product.Product) error {
	if _, ok := m.rows[p.ID]; !ok {
		return product.ErrNotFound
	}
	m.rows[p.ID] = *p
	return nil
}

func (m *memProducts) Delete(_ context.Context, id int64) error {
	if _, ok := m.rows[id]; !ok {
		return product.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memProducts) AdjustStock(_ context.Context, id int64, delta int) (*product.Product, error) {
	p, ok := m.rows[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p.Stock += delta
	m.rows[id] = p
	return &p, nil
}

// memOrders is an in-memory order.Repository sharing stock with memProducts.
type memOrders struct {
	products *memProducts
	rows     map[int64]*order.Order
	nextID   int64
}

func newMemOrders(products *memProducts) *memOrders {
	return &memOrders{products: products, rows: make(map[int64]*order.Order), nextID: 1}
}

func (m *memOrders) List(context.Context) ([]order.Order, error) {
	out := make([]order.Order, 0, len(m.rows))
	for _, o := range m.rows {
		out = append(out, *o)
	}
	return out, nil
}

func (m *memOrders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) GetByOrderNumber(_ context.Context, number string) (*order.Order, error) {
	for _, o := range m.rows {
		if o.OrderNumber == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrNotFound
}

func (m *memOrders) ListByStatus(_ context.Context, status order.Status) ([]order.Order, error) {
	var out []order.Order
	for _, o := range m.rows {
		if o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	for _, item := range o.Items {
		p, ok := m.products.rows[item.ProductID]
		if !ok {
			return product.ErrNotFound
		}
		if p.Stock < item.Quantity {
			return &order.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   item.Quantity,
			}
		}
	}
	for _, item := range o.Items {
		p := m.products.rows[item.ProductID]
		p.Stock -= item.Quantity
		m.products.rows[item.ProductID] = p
	}
	o.ID = m.nextID
	m.nextID++
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	m.rows[o.ID] = o
	return nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id int64, status order.Status) (*order.Order, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status.Terminal() {
		return nil, &order.InvalidStateError{OrderID: id, Status: o.Status}
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (m *memOrders) Cancel(_ context.Context, id int64) (*order.Order, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status.Terminal() {
		return nil, &order.InvalidStateError{OrderID: id, Status: o.Status}
	}
	for _, item := range o.Items {
		if p, ok := m.products.rows[item.ProductID]; ok {
			p.Stock += item.Quantity
			m.products.rows[item.ProductID] = p
		}
	}
	o.Status = order.StatusCancelled
	cp := *o
	return &cp, nil
}

// memStore is an in-memory objectstore.Store.
type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Enabled() bool { return true }

func (m *memStore) Put(_ context.Context, up objectstore.Upload) (string, error) {
	if len(up.Data) == 0 {
		return "", objectstore.ErrEmptyFile
	}
	if !strings.HasPrefix(up.ContentType, "image/") {
		return "", objectstore.ErrNotImage
	}
	key := up.Folder + "/" + up.Filename
	m.objects[key] = up.Data
	return "https://bucket.example.com/" + key, nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, objectstore.ErrDisabled
	}
	return data, nil
}

func (m *memStore) Delete(_ context.Context, url string) error {
	key := strings.TrimPrefix(url, "https://bucket.example.com/")
	delete(m.objects, key)
	return nil
}

func (m *memStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://bucket.example.com/" + key + "?signed", nil
}

type env struct {
	router   http.Handler
	products *memProducts
	orders   *memOrders
	store    *memStore
}

func newEnv(t *testing.T, rows ...product.Product) *env {
	t.Helper()

	products := newMemProducts(rows...)
	orders := newMemOrders(products)
	store := newMemStore()

	lg := zap.NewNop()
	productSvc := product.NewService(products, search.Disabled{}, 16, time.Minute, lg)
	orderSvc := order.NewService(orders, productSvc, lg)

	return &env{
		router:   New(productSvc, orderSvc, store, lg).Routes(),
		products: products,
		orders:   orders,
		store:    store,
	}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func widget() product.Product {
	return product.Product{
		ID:    1,
		Name:  "Widget",
		Price: decimal.RequireFromString("10.50"),
		Stock: 5,
	}
}

func TestListProducts(t *testing.T) {
	e := newEnv(t, widget())

	rec := e.do(t, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeInto[[]productResponse](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "Widget", got[0].Name)
	assert.Equal(t, 10.50, got[0].Price)
}

func TestGetProduct(t *testing.T) {
	e := newEnv(t, widget())

	rec := e.do(t, http.MethodGet, "/products/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/products/404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProduct(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/products", map[string]any{
		"name":  "Gadget",
		"price": 19.99,
		"stock": 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	got := decodeInto[productResponse](t, rec)
	assert.NotZero(t, got.ID)
	assert.Equal(t, 19.99, got.Price)
}

func TestCreateProductStringPrice(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/products", map[string]any{
		"name":  "Gadget",
		"price": "19.99",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 19.99, decodeInto[productResponse](t, rec).Price)
}

func TestCreateProductValidation(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/products", map[string]any{"price": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/products", map[string]any{
		"name": "Gadget", "price": -1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/products", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateProduct(t *testing.T) {
	e := newEnv(t, widget())

	rec := e.do(t, http.MethodPut, "/products/1", map[string]any{
		"name": "Widget v2", "price": 12, "stock": 9,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeInto[productResponse](t, rec)
	assert.Equal(t, "Widget v2", got.Name)
	assert.Equal(t, 9, got.Stock)

	rec = e.do(t, http.MethodPut, "/products/404", map[string]any{
		"name": "x", "price": 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteProduct(t *testing.T) {
	e := newEnv(t, widget())

	rec := e.do(t, http.MethodDelete, "/products/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodDelete, "/products/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdjustStock(t *testing.T) {
	e := newEnv(t, widget())

	rec := e.do(t, http.MethodPatch, "/products/1/stock?quantity=-3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeInto[productResponse](t, rec).Stock)

	rec = e.do(t, http.MethodPatch, "/products/1/stock?quantity=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPatch, "/products/1/stock", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchProducts(t *testing.T) {
	e := newEnv(t, widget())

	rec := e.do(t, http.MethodGet, "/products/search?name=widg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeInto[[]productResponse](t, rec), 1)

	rec = e.do(t, http.MethodGet, "/products/search?name=nothing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeInto[[]productResponse](t, rec))
}

func TestReindexProducts(t *testing.T) {
	e := newEnv(t, widget())

	rec := e.do(t, http.MethodPost, "/admin/reindex-products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decodeInto[reindexResponse](t, rec).Indexed, "disabled index reindexes nothing")
}

func orderBody(quantity int) map[string]any {
	return map[string]any{
		"customerName": "Ada Lovelace",
		"items": []map[string]any{
			{"productId": 1, "quantity": quantity},
		},
	}
}

func TestCreateOrder(t *testing.T) {
	e := newEnv(t, widget())

	rec := e.do(t, http.MethodPost, "/orders", orderBody(2))
	require.Equal(t, http.StatusCreated, rec.Code)

	got := decodeInto[orderResponse](t, rec)
	assert.Equal(t, "PENDING", got.Status)
	assert.Equal(t, 21.0, got.TotalAmount)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Widget", got.Items[0].ProductName)
	assert.Regexp(t, `^ORD-\d{14}-[0-9a-f]{4}$`, got.OrderNumber)
}

func TestCreateOrderErrors(t *testing.T) {
	e := newEnv(t, widget())

	// Unknown product.
	rec := e.do(t, http.MethodPost, "/orders", map[string]any{
		"customerName": "Ada",
		"items":        []map[string]any{{"productId": 99, "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Insufficient stock.
	rec = e.do(t, http.MethodPost, "/orders", orderBody(50))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient stock")

	// Missing customer name.
	rec = e.do(t, http.MethodPost, "/orders", map[string]any{
		"items": []map[string]any{{"productId": 1, "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Empty items.
	rec = e.do(t, http.MethodPost, "/orders", map[string]any{"customerName": "Ada"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder(t *testing.T) {
	e := newEnv(t, widget())
	created := decodeInto[orderResponse](t, e.do(t, http.MethodPost, "/orders", orderBody(1)))

	rec := e.do(t, http.MethodGet, "/orders/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/orders/number/"+created.OrderNumber, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeInto[orderResponse](t, rec).ID)

	rec = e.do(t, http.MethodGet, "/orders/404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/orders/number/ORD-00000000000000-dead", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrdersByStatus(t *testing.T) {
	e := newEnv(t, widget())
	e.do(t, http.MethodPost, "/orders", orderBody(1))

	rec := e.do(t, http.MethodGet, "/orders/status/PENDING", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeInto[[]orderResponse](t, rec), 1)

	rec = e.do(t, http.MethodGet, "/orders/status/SHIPPED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeInto[[]orderResponse](t, rec))

	rec = e.do(t, http.MethodGet, "/orders/status/BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	e := newEnv(t, widget())
	e.do(t, http.MethodPost, "/orders", orderBody(1))

	rec := e.do(t, http.MethodPatch, "/orders/1/status?status=DELIVERED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DELIVERED", decodeInto[orderResponse](t, rec).Status)

	// Terminal orders cannot change state again.
	rec = e.do(t, http.MethodPatch, "/orders/1/status?status=SHIPPED", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPatch, "/orders/1/status?status=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPatch, "/orders/404/status?status=SHIPPED", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelOrder(t *testing.T) {
	e := newEnv(t, widget())
	e.do(t, http.MethodPost, "/orders", orderBody(2))
	require.Equal(t, 3, e.products.rows[1].Stock)

	rec := e.do(t, http.MethodPost, "/orders/1/cancel", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 5, e.products.rows[1].Stock, "cancel must restore stock")

	rec = e.do(t, http.MethodPost, "/orders/1/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/orders/404/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	hdr["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	e := newEnv(t)

	body, contentType := multipartBody(t, "file", "photo.png", "image/png", []byte("pngdata"))
	req := httptest.NewRequest(http.MethodPost, "/upload/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeInto[uploadResponse](t, rec)
	assert.Contains(t, got.ImageURL, "products/")
	assert.Equal(t, "photo.png", got.Filename)
}

func TestUploadImageRejectsNonImage(t *testing.T) {
	e := newEnv(t)

	body, contentType := multipartBody(t, "file", "notes.txt", "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload/image", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "only image files")
}

func TestUploadImageMissingFile(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/upload/image", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeImage(t *testing.T) {
	e := newEnv(t)
	e.store.objects["products/photo.png"] = []byte("pngdata")

	rec := e.do(t, http.MethodGet, "/upload/image/products/photo.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "pngdata", rec.Body.String())

	rec = e.do(t, http.MethodGet, "/upload/image/products/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteImage(t *testing.T) {
	e := newEnv(t)
	e.store.objects["products/photo.png"] = []byte("pngdata")

	rec := e.do(t, http.MethodDelete, "/upload/image?url=https://bucket.example.com/products/photo.png", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, e.store.objects)

	rec = e.do(t, http.MethodDelete, "/upload/image", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPresignedURL(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/upload/image/presigned?key=products/photo.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeInto[presignResponse](t, rec)
	assert.Contains(t, got.URL, "signed")
	assert.Equal(t, defaultPresignTTL, got.ExpiresIn)

	rec = e.do(t, http.MethodGet, "/upload/image/presigned?key=k&expirationSeconds=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 60, decodeInto[presignResponse](t, rec).ExpiresIn)

	rec = e.do(t, http.MethodGet, "/upload/image/presigned", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/upload/image/presigned?key=k&expirationSeconds=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageStatus(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/upload/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeInto[storageStatusResponse](t, rec).S3Enabled)
}

func TestStorageDisabled(t *testing.T) {
	products := newMemProducts()
	lg := zap.NewNop()
	productSvc := product.NewService(products, search.Disabled{}, 16, time.Minute, lg)
	orderSvc := order.NewService(newMemOrders(products), productSvc, lg)
	router := New(productSvc, orderSvc, objectstore.Disabled{}, lg).Routes()

	for _, tt := range []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/upload/image"},
		{http.MethodDelete, "/upload/image?url=x"},
		{http.MethodGet, "/upload/image/products/photo.png"},
		{http.MethodGet, "/upload/image/presigned?key=k"},
	} {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "%s %s", tt.method, tt.path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"s3Enabled":false`)
}
