package ordersapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BearBump/TrackRisk/internal/models"
	"github.com/BearBump/TrackRisk/internal/services/checker"
	"github.com/BearBump/TrackRisk/internal/services/orders"
	"github.com/BearBump/TrackRisk/internal/tracking"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

const maxBodyBytes = 8 << 20

type OrdersService interface {
	CreateOrders(ctx context.Context, items []models.OrderCreateInput) ([]*models.Order, error)
	GetOrdersByIDs(ctx context.Context, ids []uint64) ([]*models.Order, error)
	ListOrderEvents(ctx context.Context, orderID uint64, limit, offset int) ([]*models.OrderEvent, error)
	CheckOrder(ctx context.Context, orderID uint64) (*models.Order, models.NormalizedTracking, error)
	CheckOrders(ctx context.Context, ids []uint64) ([]orders.BulkCheckResult, error)
	RefreshOrder(ctx context.Context, orderID uint64) error
	DraftMessage(ctx context.Context, orderID uint64) (models.MessageTemplate, error)
}

type TrackingChecker interface {
	Check(ctx context.Context, q models.TrackingQuery) (models.NormalizedTracking, error)
}

// API: JSON-ручки поверх ядра трекинга и сервиса заказов.
type API struct {
	svc     OrdersService
	checker TrackingChecker
}

func New(svc OrdersService, c TrackingChecker) *API {
	return &API{svc: svc, checker: c}
}

// Routes вешает ручки /v1 на r.
func (a *API) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/tracking/check", a.checkTracking)
		r.Get("/carriers/detect", a.detectCarrier)

		r.Post("/orders", a.createOrders)
		r.Post("/orders/by-ids", a.getOrdersByIDs)
		r.Post("/orders/check", a.checkOrders)
		r.Get("/orders/{id}/events", a.listOrderEvents)
		r.Post("/orders/{id}/check", a.checkOrder)
		r.Post("/orders/{id}/refresh", a.refreshOrder)
		r.Get("/orders/{id}/message", a.draftMessage)
	})
}

type checkTrackingRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier,omitempty"`
}

func (a *API) checkTracking(w http.ResponseWriter, r *http.Request) {
	var req checkTrackingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.checker.Check(r.Context(), models.TrackingQuery{
		TrackingNumber: req.TrackingNumber,
		CarrierHint:    req.Carrier,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) detectCarrier(w http.ResponseWriter, r *http.Request) {
	n := strings.TrimSpace(r.URL.Query().Get("trackingNumber"))
	if n == "" {
		writeError(w, checker.ErrEmptyTrackingNumber)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"carrier": tracking.DetectCarrier(n)})
}

type createOrdersRequest struct {
	Items []models.OrderCreateInput `json:"items"`
}

type ordersResponse struct {
	Orders []*models.Order `json:"orders"`
}

func (a *API) createOrders(w http.ResponseWriter, r *http.Request) {
	var req createOrdersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := a.svc.CreateOrders(r.Context(), req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ordersResponse{Orders: out})
}

type idsRequest struct {
	IDs []uint64 `json:"ids"`
}

func (a *API) getOrdersByIDs(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := a.svc.GetOrdersByIDs(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ordersResponse{Orders: out})
}

func (a *API) listOrderEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}
	evs, err := a.svc.ListOrderEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

type checkOrderResponse struct {
	Order  *models.Order             `json:"order"`
	Result models.NormalizedTracking `json:"result"`
}

func (a *API) checkOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	o, res, err := a.svc.CheckOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkOrderResponse{Order: o, Result: res})
}

func (a *API) checkOrders(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := a.svc.CheckOrders(r.Context(), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (a *API) refreshOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := a.svc.RefreshOrder(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refreshed": true})
}

func (a *API) draftMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	tpl, err := a.svc.DraftMessage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func orderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
		return 0, false
	}
	return id, true
}

// queryInt: пустой параметр даёт 0 (дефолт репозитория), мусор даёт 400.
func queryInt(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(orders.ErrInvalidArgument, "invalid %s %q", name, v)
	}
	return n, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrInvalidArgument), errors.Is(err, checker.ErrEmptyTrackingNumber):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
