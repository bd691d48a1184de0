package api

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"novelrag/types"
)

// ErrorHandler maps domain errors to HTTP statuses. Serve-time failures are
// scoped to the request; "no relevant passages" is not an error and never
// reaches this handler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if apiError, ok := err.(Error); ok {
		return c.Status(apiError.Code).JSON(apiError)
	}
	if valError, ok := err.(types.ValidationError); ok {
		return c.Status(valError.Status).JSON(valError)
	}

	var genErr types.GenerationError
	if errors.As(err, &genErr) {
		code := fiber.StatusBadGateway
		if errors.Is(genErr.Err, context.DeadlineExceeded) {
			code = fiber.StatusGatewayTimeout
		}
		return respond(c, NewError(code, genErr.Error()))
	}

	var retErr types.RetrievalError
	if errors.As(err, &retErr) {
		return respond(c, NewError(fiber.StatusInternalServerError, retErr.Error()))
	}

	if errors.Is(err, types.ErrBuildInProgress) {
		return respond(c, NewError(fiber.StatusConflict, err.Error()))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return respond(c, NewError(fiberErr.Code, fiberErr.Message))
	}

	return respond(c, NewError(fiber.StatusInternalServerError, err.Error()))
}

func respond(c *fiber.Ctx, apiError Error) error {
	log.Printf("request failed with code %d and message: %s", apiError.Code, apiError.Message)
	return c.Status(apiError.Code).JSON(apiError)
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}
