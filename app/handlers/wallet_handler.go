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

// WalletHandlerInterface defines the contract for wallet handlers
type WalletHandlerInterface interface {
	GetBalance(c fiber.Ctx) error
	Deposit(c fiber.Ctx) error
	GetTransactionHistory(c fiber.Ctx) error
}

// WalletHandler handles wallet HTTP requests
type WalletHandler struct {
	walletFlow businessflow.WalletFlow
	validator  *validator.Validate
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(walletFlow businessflow.WalletFlow) *WalletHandler {
	return &WalletHandler{
		walletFlow: walletFlow,
		validator:  validator.New(),
	}
}

func (h *WalletHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WalletHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GetBalance returns the authenticated customer's wallet view
func (h *WalletHandler) GetBalance(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	result, err := h.walletFlow.GetBalance(h.createRequestContext(c), customerID)
	if err != nil {
		if businessflow.IsWalletNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Wallet not found", "WALLET_NOT_FOUND", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get balance", "BALANCE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Balance retrieved successfully", result)
}

// Deposit credits the authenticated customer's wallet
func (h *WalletHandler) Deposit(c fiber.Ctx) error {
	var req dto.DepositRequest
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

	result, err := h.walletFlow.Deposit(h.createRequestContext(c), customerID, req.Amount, "wallet deposit")
	if err != nil {
		if businessflow.IsWalletNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Wallet not found", "WALLET_NOT_FOUND", nil)
		}
		if businessflow.IsAmountNotPositive(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Amount must be positive", "AMOUNT_NOT_POSITIVE", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to deposit", "DEPOSIT_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Deposit recorded successfully", result)
}

// GetTransactionHistory returns the customer's ledger page
func (h *WalletHandler) GetTransactionHistory(c fiber.Ctx) error {
	customerID, ok := c.Locals("customer_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Customer ID not found in context", "MISSING_CUSTOMER_ID", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	result, err := h.walletFlow.ListTransactions(h.createRequestContext(c), customerID, page, pageSize)
	if err != nil {
		if err == businessflow.ErrInvalidPage || err == businessflow.ErrInvalidPageSize {
			return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "INVALID_PAGINATION", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list transactions", "HISTORY_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Transactions retrieved successfully", result)
}

// createRequestContext creates a context with a request timeout
func (h *WalletHandler) createRequestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, requestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, cancelFuncKey, cancel)
	return ctx
}
