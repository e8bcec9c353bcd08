// internal/service/stock/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"stockgate/internal/pkg/logger"
	"stockgate/internal/service/stock/application"
	"stockgate/internal/service/stock/domain"
)

// StockHandler 封装了库存服务的 HTTP 处理器
type StockHandler struct {
	gate    *application.ReservationGate
	stock   *application.StockService
	metrics http.Handler
}

// NewStockHandler 创建 HTTP 处理器；metrics 为空时不暴露 /metrics
func NewStockHandler(gate *application.ReservationGate, stock *application.StockService, metrics http.Handler) *StockHandler {
	return &StockHandler{gate: gate, stock: stock, metrics: metrics}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *StockHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	mux.HandleFunc("POST /orders", h.reserve)
	mux.HandleFunc("GET /orders/{token}", h.getOrder)
	mux.HandleFunc("POST /admin/stock", h.initStock)
	mux.HandleFunc("GET /stock/{id}/fast", h.fastStock)
	mux.HandleFunc("GET /stock/{id}/durable", h.durableStock)
}

type reserveRequest struct {
	ItemID      int64 `json:"item_id"`
	Quantity    int64 `json:"quantity"`
	RequesterID int64 `json:"requester_id"`
}

type reserveResponse struct {
	CorrelationToken string `json:"correlation_token"`
	Status           string `json:"status"`
}

type initStockRequest struct {
	ItemID          int64  `json:"item_id"`
	Name            string `json:"name"`
	DurableQuantity int64  `json:"durable_quantity"`
	FastQuantity    int64  `json:"fast_quantity"`
}

type stockResponse struct {
	ItemID   int64 `json:"item_id"`
	Quantity int64 `json:"quantity"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (h *StockHandler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_error", Detail: "malformed request body"})
		return
	}

	res, err := h.gate.Reserve(ctx, application.ReserveRequest{
		ItemID:      domain.ItemID(req.ItemID),
		Quantity:    req.Quantity,
		RequesterID: req.RequesterID,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, reserveResponse{CorrelationToken: res.CorrelationToken, Status: "pending"})
	case errors.Is(err, domain.ErrInsufficientStock):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "insufficient_stock"})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_error", Detail: err.Error()})
	default:
		logger.Ctx(ctx).Error().Err(err).Int64("item_id", req.ItemID).Msg("Reservation failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
	}
}

func (h *StockHandler) initStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req initStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_error", Detail: "malformed request body"})
		return
	}

	err := h.stock.InitStock(ctx, application.InitStockRequest{
		ItemID:          domain.ItemID(req.ItemID),
		Name:            req.Name,
		DurableQuantity: req.DurableQuantity,
		FastQuantity:    req.FastQuantity,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, req)
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_error", Detail: err.Error()})
	default:
		logger.Ctx(ctx).Error().Err(err).Int64("item_id", req.ItemID).Msg("Init stock failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
	}
}

func (h *StockHandler) fastStock(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDFromPath(w, r)
	if !ok {
		return
	}
	n, err := h.stock.FastStock(r.Context(), id)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("Fast stock query failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{ItemID: int64(id), Quantity: n})
}

func (h *StockHandler) durableStock(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDFromPath(w, r)
	if !ok {
		return
	}
	n, err := h.stock.DurableStock(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, stockResponse{ItemID: int64(id), Quantity: n})
	case errors.Is(err, domain.ErrItemNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
	default:
		logger.Ctx(r.Context()).Error().Err(err).Msg("Durable stock query failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
	}
}

func (h *StockHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.stock.Order(r.Context(), r.PathValue("token"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, order)
	case errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
	default:
		logger.Ctx(r.Context()).Error().Err(err).Msg("Order query failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
	}
}

func itemIDFromPath(w http.ResponseWriter, r *http.Request) (domain.ItemID, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation_error", Detail: "invalid item id"})
		return 0, false
	}
	return domain.ItemID(id), true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
