package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/clinic-pos/internal/checkout"
	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/infrastructure/store"
	"github.com/example/clinic-pos/internal/receiving"
)

type ErrorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func statusFor(kind checkout.Kind) int {
	switch kind {
	case checkout.KindValidation:
		return http.StatusBadRequest
	case checkout.KindAuthorizationRequired:
		return http.StatusForbidden
	case checkout.KindNotFound:
		return http.StatusNotFound
	case checkout.KindInsufficientStock, checkout.KindNoSellableBatch, checkout.KindInvalidTender:
		return http.StatusUnprocessableEntity
	case checkout.KindConcurrencyConflict:
		return http.StatusConflict
	case checkout.KindCanceled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func respondError(c echo.Context, err error) error {
	var ce *checkout.Error
	if !errors.As(err, &ce) {
		ce = &checkout.Error{Kind: checkout.KindPersistence, Message: "internal error", Err: err}
	}
	return c.JSON(statusFor(ce.Kind), ErrorResponse{Error: ErrorBody{
		Kind:      string(ce.Kind),
		Message:   ce.Message,
		Retryable: ce.Retryable(),
	}})
}

func respondValidation(c echo.Context, message string) error {
	return respondError(c, &checkout.Error{Kind: checkout.KindValidation, Message: message})
}

func respondReceivingError(c echo.Context, err error) error {
	kind := checkout.KindPersistence
	message := "goods receipt could not be saved"
	switch {
	case errors.Is(err, receiving.ErrInvalidReceipt), errors.Is(err, catalog.ErrProductNotFound):
		kind, message = checkout.KindValidation, err.Error()
	case errors.Is(err, store.ErrConflict):
		kind, message = checkout.KindConcurrencyConflict, "stock changed concurrently, retry the receipt"
	}
	return respondError(c, &checkout.Error{Kind: kind, Message: message, Err: err})
}
