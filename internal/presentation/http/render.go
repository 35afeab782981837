package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Zhima-Mochi/storefront-orders/internal/application"
	domainInventory "github.com/Zhima-Mochi/storefront-orders/internal/domain/inventory"
	domainOrder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"
	domainPayment "github.com/Zhima-Mochi/storefront-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability"
	"github.com/Zhima-Mochi/storefront-orders/internal/observability/logctx"
)

const maxBodyBytes = 1 << 20

var (
	errMissingUser     = errors.New("X-User-ID header is required")
	errTooManyRequests = errors.New("too many requests")
	errInternal        = errors.New("internal error")
)

type errorResponse struct {
	Error string `json:"error"`
	// Fields carries per-field validation messages.
	Fields map[string]string `json:"fields,omitempty"`
	// Current and Allowed describe a rejected status change.
	Current string   `json:"current_status,omitempty"`
	Allowed []string `json:"allowed_statuses,omitempty"`
	// ProductID, Requested and Available describe a stock shortfall.
	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// decodeJSON reads a single JSON object. An empty body is accepted when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return application.NewValidation("body", fmt.Sprintf("invalid JSON body: %s", err.Error()))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeDomainError maps application and domain failures onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *application.ValidationError
		terr *domainOrder.TransitionError
		serr *domainInventory.StockError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Fields: verr.Fields})
	case errors.As(err, &terr):
		allowed := make([]string, len(terr.Allowed))
		for i, s := range terr.Allowed {
			allowed[i] = string(s)
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: terr.Error(), Current: string(terr.From), Allowed: allowed})
	case errors.As(err, &serr):
		available := serr.Available
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     serr.Error(),
			ProductID: serr.ProductID,
			Requested: serr.Requested,
			Available: &available,
		})
	case errors.Is(err, domainOrder.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domainOrder.ErrNotFound),
		errors.Is(err, domainInventory.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domainOrder.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, domainOrder.ErrNoItems),
		errors.Is(err, domainOrder.ErrInvalidQuantity),
		errors.Is(err, domainOrder.ErrInvalidAmount),
		errors.Is(err, domainInventory.ErrInvalidQuantity),
		errors.Is(err, domainPayment.ErrInvalidStatus),
		errors.Is(err, domainPayment.ErrInvalidMethod):
		writeError(w, http.StatusBadRequest, err)
	default:
		logctx.FromOr(r.Context(), h.log).Error("http_internal_error", observability.F("error", err.Error()))
		writeError(w, http.StatusInternalServerError, errInternal)
	}
}
