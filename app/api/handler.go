package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"novelrag/app/session"
	"novelrag/types"
)

type ChatHandler struct {
	session *session.Session
}

func NewChatHandler(s *session.Session) *ChatHandler {
	return &ChatHandler{
		session: s,
	}
}

// HandleChat is the query operation: {query, history} in, {answer, sources}
// out. Malformed requests are rejected before any retrieval happens.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	answer, err := h.session.Ask(c.Context(), params)
	if err != nil {
		return err
	}

	resp := &types.ChatResponse{
		Answer:    answer.Answer,
		Thinking:  answer.Thinking,
		Sources:   answer.Sources,
		Timestamp: time.Now(),
	}
	return c.JSON(resp)
}
