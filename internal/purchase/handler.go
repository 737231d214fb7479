package purchase

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler wires HTTP endpoints for the purchase module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the purchase handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{orderID}", h.handleGet)
	r.Put("/{orderID}", h.handleUpdate)
	r.Delete("/{orderID}", h.handleDelete)
	r.Post("/{orderID}/status", h.handleStatus)
	r.Post("/{orderID}/receive", h.handleReceive)
}

type lineRequest struct {
	ProductID  string `json:"productId" validate:"required"`
	VariantID  string `json:"variantId" validate:"required"`
	VariantSKU string `json:"variantSku" validate:"required,max=100"`
	Quantity   int64  `json:"quantity" validate:"required,gte=1"`
	UnitPrice  string `json:"unitPrice" validate:"required"`
}

type createOrderRequest struct {
	SupplierID       string        `json:"supplierId" validate:"required"`
	Lines            []lineRequest `json:"items" validate:"required,min=1,dive"`
	Notes            string        `json:"notes" validate:"max=2000"`
	ExpectedDelivery string        `json:"expectedDelivery"`
}

type updateOrderRequest struct {
	SupplierID       string        `json:"supplierId" validate:"required"`
	Lines            []lineRequest `json:"items" validate:"required,min=1,dive"`
	Notes            string        `json:"notes" validate:"max=2000"`
	ExpectedDelivery string        `json:"expectedDelivery"`
	Version          int64         `json:"version" validate:"required,gte=1"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type receiveRequest struct {
	ReceivedItems []receivedItemRequest `json:"receivedItems" validate:"required,min=1,dive"`
}

type receivedItemRequest struct {
	LineID   string `json:"itemId" validate:"required"`
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
}

type lineResponse struct {
	ID               uuid.UUID `json:"id"`
	ProductID        uuid.UUID `json:"productId"`
	VariantID        uuid.UUID `json:"variantId"`
	VariantSKU       string    `json:"variantSku"`
	OrderedQuantity  int64     `json:"quantity"`
	UnitPrice        string    `json:"unitPrice"`
	ReceivedQuantity int64     `json:"receivedQuantity"`
}

type orderResponse struct {
	ID               uuid.UUID      `json:"id"`
	OrderNumber      string         `json:"orderNumber"`
	SupplierID       uuid.UUID      `json:"supplierId"`
	Items            []lineResponse `json:"items,omitempty"`
	Status           string         `json:"status"`
	TotalAmount      string         `json:"totalAmount"`
	Notes            string         `json:"notes,omitempty"`
	ExpectedDelivery *time.Time     `json:"expectedDelivery,omitempty"`
	Version          int64          `json:"version"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := buildCreateInput(tenantID, actorID, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"order": toOrderResponse(order)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	filter := ListFilter{TenantID: tenantID}
	q := r.URL.Query()
	filter.Status = Status(q.Get("status"))
	if v := q.Get("supplierId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid supplierId")
			return
		}
		filter.SupplierID = id
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	orders, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": out, "pagination": pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tenantID, orderID, ok := h.orderScope(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), tenantID, orderID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(order)})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	tenantID, orderID, ok := h.orderScope(w, r)
	if !ok {
		return
	}
	var req updateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid supplierId")
		return
	}
	lines, err := buildLineInputs(req.Lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	expected, err := parseOptionalDate(req.ExpectedDelivery)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expectedDelivery")
		return
	}

	order, err := h.service.UpdateDraft(r.Context(), UpdateOrderInput{
		TenantID:         tenantID,
		OrderID:          orderID,
		SupplierID:       supplierID,
		Lines:            lines,
		Notes:            req.Notes,
		ExpectedDelivery: expected,
		Version:          req.Version,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(order)})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, orderID, ok := h.orderScope(w, r)
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())

	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	order, err := h.service.ChangeStatus(r.Context(), tenantID, orderID, Status(req.Status), actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(order)})
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	tenantID, orderID, ok := h.orderScope(w, r)
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())

	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]ReceiptItem, 0, len(req.ReceivedItems))
	for _, item := range req.ReceivedItems {
		lineID, err := uuid.Parse(item.LineID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid itemId")
			return
		}
		items = append(items, ReceiptItem{LineID: lineID, Quantity: item.Quantity})
	}

	order, err := h.service.Receive(r.Context(), tenantID, orderID, items, actorID)
	if err != nil {
		h.logger.Warn("receive delivery rejected", slog.Any("error", err), slog.String("order_id", orderID.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(order)})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	tenantID, orderID, ok := h.orderScope(w, r)
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), tenantID, orderID, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) orderScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, orderID, true
}

func buildCreateInput(tenantID, actorID uuid.UUID, req createOrderRequest) (CreateOrderInput, error) {
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		return CreateOrderInput{}, shared.Validationf("invalid supplierId")
	}
	lines, err := buildLineInputs(req.Lines)
	if err != nil {
		return CreateOrderInput{}, err
	}
	expected, err := parseOptionalDate(req.ExpectedDelivery)
	if err != nil {
		return CreateOrderInput{}, shared.Validationf("invalid expectedDelivery")
	}
	return CreateOrderInput{
		TenantID:         tenantID,
		SupplierID:       supplierID,
		Lines:            lines,
		Notes:            req.Notes,
		ExpectedDelivery: expected,
		CreatedBy:        actorID,
	}, nil
}

func buildLineInputs(reqs []lineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for _, req := range reqs {
		productID, err := uuid.Parse(req.ProductID)
		if err != nil {
			return nil, shared.Validationf("invalid productId for SKU %s", req.VariantSKU)
		}
		variantID, err := uuid.Parse(req.VariantID)
		if err != nil {
			return nil, shared.Validationf("invalid variantId for SKU %s", req.VariantSKU)
		}
		price, err := decimal.NewFromString(req.UnitPrice)
		if err != nil {
			return nil, shared.Validationf("invalid unitPrice for SKU %s", req.VariantSKU)
		}
		lines = append(lines, LineInput{
			ProductID:  productID,
			VariantID:  variantID,
			VariantSKU: req.VariantSKU,
			Quantity:   req.Quantity,
			UnitPrice:  price,
		})
	}
	return lines, nil
}

func toOrderResponse(order Order) orderResponse {
	resp := orderResponse{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		SupplierID:  order.SupplierID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount.String(),
		Notes:       order.Notes,
		Version:     order.Version,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	if !order.ExpectedDelivery.IsZero() {
		t := order.ExpectedDelivery
		resp.ExpectedDelivery = &t
	}
	for _, line := range order.Lines {
		resp.Items = append(resp.Items, lineResponse{
			ID:               line.ID,
			ProductID:        line.ProductID,
			VariantID:        line.VariantID,
			VariantSKU:       line.VariantSKU,
			OrderedQuantity:  line.OrderedQuantity,
			UnitPrice:        line.UnitPrice.String(),
			ReceivedQuantity: line.ReceivedQuantity,
		})
	}
	return resp
}

func parseOptionalDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
