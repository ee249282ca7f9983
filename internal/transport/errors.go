package transport

import (
	"errors"
	"net/http"

	"dreampuff/internal/assistant"
	"dreampuff/internal/middleware"
	"dreampuff/internal/report"
	"dreampuff/internal/repository"
	"dreampuff/internal/service"
	"dreampuff/internal/session"

	"go.uber.org/zap"
)

// badRequestErrors are caller mistakes answered with 400 and the error text
var badRequestErrors = []error{
	service.ErrInvalidQuantity,
	service.ErrEmptySale,
	service.ErrEmptyBatch,
	service.ErrInvalidCategory,
	service.ErrNameRequired,
	service.ErrInvalidTimeframe,
	service.ErrMessageRequired,
	repository.ErrNegativeStock,
	report.ErrInvalidRange,
	session.ErrNameRequired,
	session.ErrInvalidPosition,
}

// respondWithServiceError maps a service error onto the HTTP error taxonomy
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var shortage *repository.StockShortageError
	if errors.As(err, &shortage) {
		middleware.RespondWithErrorDetails(w, http.StatusConflict, shortage.Error(), map[string]interface{}{
			"productId":   shortage.ProductID.String(),
			"productName": shortage.ProductName,
			"requested":   shortage.Requested,
			"available":   shortage.Available,
		})
		return
	}

	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			middleware.RespondWithError(w, http.StatusBadRequest, target.Error())
			return
		}
	}

	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, service.ErrInsufficientStock):
		middleware.RespondWithError(w, http.StatusConflict, "insufficient stock")
	case errors.Is(err, session.ErrSaveInProgress):
		middleware.RespondWithError(w, http.StatusConflict, "a save is already in progress")
	case errors.Is(err, service.ErrDayAlreadyClosed):
		middleware.RespondWithError(w, http.StatusConflict, "the business day is already closed")
	case errors.Is(err, repository.ErrProductNameTaken):
		middleware.RespondWithError(w, http.StatusConflict, "a product with this name already exists")
	case errors.Is(err, assistant.ErrNotConfigured):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "assistant is not configured")
	case errors.Is(err, assistant.ErrUpstreamFailed), errors.Is(err, assistant.ErrEmptyResponse):
		logger.Warn("Assistant call failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadGateway, "assistant is unavailable, please try again")
	default:
		logger.Error(fallback, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}
