package stock

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.handleListMovements)
	r.Post("/adjustments", h.handleAdjust)
	r.Get("/records/{productID}/{variantID}", h.handleGetRecord)
}

type adjustRequest struct {
	ProductID string `json:"productId" validate:"required,uuid4_rfc4122|uuid_rfc4122"`
	VariantID string `json:"variantId" validate:"required,uuid4_rfc4122|uuid_rfc4122"`
	Kind      string `json:"kind" validate:"required,oneof=purchase sale return adjustment"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"max=200"`
	Note      string `json:"note" validate:"max=1000"`
}

type movementResponse struct {
	ID               uuid.UUID `json:"id"`
	ProductID        uuid.UUID `json:"productId"`
	VariantID        uuid.UUID `json:"variantId"`
	VariantSKU       string    `json:"variantSku"`
	Kind             string    `json:"kind"`
	Quantity         int64     `json:"quantity"`
	PreviousQuantity int64     `json:"previousQuantity"`
	NewQuantity      int64     `json:"newQuantity"`
	Reference        string    `json:"reference,omitempty"`
	Note             string    `json:"note,omitempty"`
	PerformedBy      string    `json:"performedBy,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())

	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid productId")
		return
	}
	variantID, err := uuid.Parse(req.VariantID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid variantId")
		return
	}

	movement, err := h.service.Adjust(r.Context(), AdjustInput{
		TenantID:       tenantID,
		ProductID:      productID,
		VariantID:      variantID,
		Kind:           MovementKind(req.Kind),
		Quantity:       req.Quantity,
		Reference:      req.Reference,
		Note:           req.Note,
		ActorID:        actorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Warn("stock adjustment rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"movement":    toMovementResponse(movement),
		"newQuantity": movement.NewQuantity,
	})
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}

	filter := MovementFilter{TenantID: tenantID}
	q := r.URL.Query()
	if v := q.Get("productId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid productId")
			return
		}
		filter.ProductID = id
	}
	filter.Kind = MovementKind(q.Get("kind"))
	var err error
	if filter.From, err = parseDate(q.Get("from"), false); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
		return
	}
	if filter.To, err = parseDate(q.Get("to"), true); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
		return
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	movements, pagination, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements":  out,
		"pagination": pagination,
	})
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := shared.TenantFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant not resolved")
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	variantID, err := uuid.Parse(chi.URLParam(r, "variantID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid variant id")
		return
	}
	record, err := h.service.GetRecord(r.Context(), tenantID, productID, variantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"productId":         record.ProductID,
		"variantId":         record.VariantID,
		"sku":               record.SKU,
		"quantityOnHand":    record.QuantityOnHand,
		"lowStockThreshold": record.LowStockThreshold,
		"updatedAt":         record.UpdatedAt,
	})
}

func toMovementResponse(m Movement) movementResponse {
	resp := movementResponse{
		ID:               m.ID,
		ProductID:        m.ProductID,
		VariantID:        m.VariantID,
		VariantSKU:       m.VariantSKU,
		Kind:             string(m.Kind),
		Quantity:         m.Quantity,
		PreviousQuantity: m.PreviousQuantity,
		NewQuantity:      m.NewQuantity,
		Reference:        m.Reference,
		Note:             m.Note,
		CreatedAt:        m.CreatedAt,
	}
	if m.PerformedBy != uuid.Nil {
		resp.PerformedBy = m.PerformedBy.String()
	}
	return resp
}

func parseDate(value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
