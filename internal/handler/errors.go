package handler

import (
	"context"
	"errors"
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/pkg/payment"

	"github.com/gin-gonic/gin"
)

// statusFor maps service and repository errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, service.ErrInvalidCreds),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrPlanNotFound),
		errors.Is(err, repository.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateOrder),
		errors.Is(err, service.ErrEmailExists),
		errors.Is(err, service.ErrUsernameExists):
		return http.StatusConflict
	case errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidSubject),
		errors.Is(err, service.ErrUnknownOrderType),
		errors.Is(err, service.ErrInvalidProduct),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, service.ErrInvalidOutTradeNo),
		errors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrGateway),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusBadGateway:
		msg = "payment gateway unavailable"
	}
	_ = c.Error(err)
	c.JSON(code, gin.H{"error": msg})
}
