package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dawapos/dawapos/internal/imaging"
	"github.com/dawapos/dawapos/internal/model"
	"github.com/dawapos/dawapos/internal/money"
	"github.com/dawapos/dawapos/internal/store"
)

// ProductsHandler handles catalog endpoints.
type ProductsHandler struct {
	DB *sql.DB
}

type productRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	Price            string `json:"price"`
	ReorderThreshold int    `json:"reorder_threshold"`
	Supplier         string `json:"supplier"`
	ExpiryDate       string `json:"expiry_date"` // YYYY-MM-DD
}

// productView decorates a product with its derived expiry status.
type productView struct {
	model.Product
	ExpiryStatus string `json:"expiry_status"`
}

func viewProduct(p model.Product) productView {
	return productView{Product: p, ExpiryStatus: p.ExpiryStatus(time.Now())}
}

func (req *productRequest) toModel() (*model.Product, error) {
	price, err := money.Parse(req.Price)
	if err != nil {
		return nil, &model.ValidationError{Field: "price", Reason: "must be a decimal amount"}
	}

	p := &model.Product{
		Name:             req.Name,
		Description:      req.Description,
		Category:         req.Category,
		Price:            price,
		ReorderThreshold: req.ReorderThreshold,
		Supplier:         req.Supplier,
	}
	if req.ExpiryDate != "" {
		expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			return nil, &model.ValidationError{Field: "expiry_date", Reason: "must be YYYY-MM-DD"}
		}
		p.ExpiryDate = &expiry
	}
	return p, nil
}

// List handles GET /api/products. Supports category, low_stock, out_of_stock,
// and expiry_status query filters.
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ProductFilter{
		Category:   q.Get("category"),
		LowStock:   q.Get("low_stock") == "true",
		OutOfStock: q.Get("out_of_stock") == "true",
	}

	products, err := store.ListProducts(r.Context(), h.DB, filter)
	if err != nil {
		slog.Error("failed to list products", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	expiryStatus := q.Get("expiry_status")
	views := []productView{}
	for _, p := range products {
		v := viewProduct(p)
		if expiryStatus != "" && v.ExpiryStatus != expiryStatus {
			continue
		}
		views = append(views, v)
	}
	jsonResponse(w, http.StatusOK, views)
}

// Create handles POST /api/products.
func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := req.toModel()
	if err != nil {
		storeError(w, err)
		return
	}

	p, err = store.CreateProduct(r.Context(), h.DB, p)
	if err != nil {
		storeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("product created", "user", claims.Username, "product", p.Name, "id", p.ID)
	jsonResponse(w, http.StatusCreated, viewProduct(*p))
}

// Get handles GET /api/products/{id}.
func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get product", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}

	jsonResponse(w, http.StatusOK, viewProduct(*p))
}

// Update handles PUT /api/products/{id}. Stock cannot be changed here; use
// the inventory endpoints so the change is logged.
func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := req.toModel()
	if err != nil {
		storeError(w, err)
		return
	}
	p.ID = id

	if err := store.UpdateProduct(r.Context(), h.DB, p); err != nil {
		storeError(w, err)
		return
	}

	updated, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil || updated == nil {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}
	jsonResponse(w, http.StatusOK, viewProduct(*updated))
}

// Delete handles DELETE /api/products/{id}. Products are deactivated, never
// removed, because stock logs reference them.
func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := store.DeactivateProduct(r.Context(), h.DB, id); err != nil {
		storeError(w, err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("product deactivated", "user", claims.Username, "id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "product deactivated"})
}

// UploadImage handles PUT /api/products/{id}/image.
func (h *ProductsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	// Limit to 5 MB.
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20)

	if err := r.ParseMultipartForm(5 << 20); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetProductImage(r.Context(), h.DB, id, photo.Data, photo.MIME); err != nil {
		storeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/products/{id}/image.
func (h *ProductsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	data, mime, err := store.GetProductImage(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get product image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
