package types

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

// QueryParams is the body of the chat operation. History is optional, Book
// narrows retrieval to a single novel.
type QueryParams struct {
	Query   string             `json:"query" validate:"required"`
	History []ConversationTurn `json:"history" validate:"omitempty,dive"`
	Book    string             `json:"book,omitempty"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *QueryParams) Validate() map[string]string {
	validate := validator.New()
	if err := validate.Struct(params); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

// ChatResponse is what the chat operation returns. Sources cite the chunks
// the answer was grounded on; an empty list means the model answered without
// supporting passages. Thinking carries the model's reasoning when it
// produced the structured answer shape.
type ChatResponse struct {
	Answer    string    `json:"answer"`
	Thinking  string    `json:"thinking,omitempty"`
	Sources   []Source  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}
