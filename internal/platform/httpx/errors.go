package httpx

import (
	"net/http"

	"github.com/stocklane/stocklane/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.KindInsufficientStock:
		Problem(w, http.StatusBadRequest, "Insufficient Stock", err.Error())
	case shared.KindOverReceipt:
		Problem(w, http.StatusBadRequest, "Over Receipt", err.Error())
	case shared.KindInvalidTransition:
		Problem(w, http.StatusBadRequest, "Invalid Transition", err.Error())
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case shared.KindConflict:
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
