package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/amirphl/Uwabami/app/dto"
	businessflow "github.com/amirphl/Uwabami/business_flow"
)

// NumberHandlerInterface defines the contract for number handlers
type NumberHandlerInterface interface {
	PurchaseNumber(c fiber.Ctx) error
	ListNumbers(c fiber.Ctx) error
	GetNumberStatus(c fiber.Ctx) error
	CancelNumber(c fiber.Ctx) error
	CompleteNumber(c fiber.Ctx) error
	GetProviderHealth(c fiber.Ctx) error
}

// NumberHandler handles number lifecycle HTTP requests
type NumberHandler struct {
	numberFlow businessflow.NumberFlow
	validator  *validator.Validate
}

// NewNumberHandler creates a new number handler
func NewNumberHandler(numberFlow businessflow.NumberFlow) *NumberHandler {
	return &NumberHandler{
		numberFlow: numberFlow,
		validator:  validator.New(),
	}
}

func (h *NumberHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *NumberHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// PurchaseNumber buys a virtual number for the authenticated customer
func (h *NumberHandler) PurchaseNumber(c fiber.Ctx) error {
	var req dto.PurchaseNumberRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	result, err := h.numberFlow.PurchaseNumber(h.createRequestContext(c), customerID, &req)
	if err != nil {
		if businessflow.IsInsufficientFunds(err) {
			return h.ErrorResponse(c, fiber.StatusPaymentRequired, "Insufficient funds", "INSUFFICIENT_FUNDS", nil)
		}
		if businessflow.IsWalletNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Wallet not found", "WALLET_NOT_FOUND", nil)
		}
		if businessflow.IsNoProvidersAvailable(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "No providers available", "NO_PROVIDERS_AVAILABLE", nil)
		}
		if businessflow.IsAllProvidersFailed(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "All providers failed", "ALL_PROVIDERS_FAILED", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to purchase number", "PURCHASE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Number purchased successfully", result)
}

// ListNumbers returns the authenticated customer's activations
func (h *NumberHandler) ListNumbers(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	result, err := h.numberFlow.ListNumbers(h.createRequestContext(c), customerID, page, pageSize)
	if err != nil {
		if err == businessflow.ErrInvalidPage || err == businessflow.ErrInvalidPageSize {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGINATION", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list numbers", "LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Numbers retrieved successfully", result)
}

// GetNumberStatus returns one activation with its relayed messages
func (h *NumberHandler) GetNumberStatus(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	result, err := h.numberFlow.GetNumberStatus(h.createRequestContext(c), customerID, c.Params("uuid"))
	if err != nil {
		return h.activationError(c, err, "Failed to get number status", "STATUS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Number status retrieved successfully", result)
}

// CancelNumber cancels an activation that has not received an SMS yet
func (h *NumberHandler) CancelNumber(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	result, err := h.numberFlow.CancelNumber(h.createRequestContext(c), customerID, c.Params("uuid"))
	if err != nil {
		if businessflow.IsActivationNotCancelable(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Number can no longer be cancelled", "NOT_CANCELABLE", nil)
		}
		return h.activationError(c, err, "Failed to cancel number", "CANCEL_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Number cancelled successfully", result)
}

// CompleteNumber confirms the customer is done with a received number
func (h *NumberHandler) CompleteNumber(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	result, err := h.numberFlow.CompleteNumber(h.createRequestContext(c), customerID, c.Params("uuid"))
	if err != nil {
		if businessflow.IsActivationNotCompletable(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Number is not awaiting completion", "NOT_COMPLETABLE", nil)
		}
		return h.activationError(c, err, "Failed to complete number", "COMPLETE_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Number completed successfully", result)
}

// GetProviderHealth returns the scored health report for all active providers
func (h *NumberHandler) GetProviderHealth(c fiber.Ctx) error {
	result, err := h.numberFlow.ProviderHealthReport(h.createRequestContext(c))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to evaluate provider health", "HEALTH_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Provider health retrieved successfully", result)
}

func (h *NumberHandler) activationError(c fiber.Ctx, err error, message, code string) error {
	if businessflow.IsActivationNotFound(err) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Number not found", "NUMBER_NOT_FOUND", nil)
	}
	if businessflow.IsActivationAccessDenied(err) {
		return h.ErrorResponse(c, fiber.StatusForbidden, "Number access denied", "ACCESS_DENIED", nil)
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// createRequestContext creates a context with a request timeout. Purchase can
// walk several providers, so the budget is generous.
func (h *NumberHandler) createRequestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	ctx = context.WithValue(ctx, requestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, cancelFuncKey, cancel)
	return ctx
}

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	cancelFuncKey contextKey = "cancel_func"
)
