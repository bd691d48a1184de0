package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"novelrag/loader/service"
)

type BuildHandler struct {
	builder *service.Service
	timeout time.Duration
}

func NewBuildHandler(builder *service.Service, timeout time.Duration) *BuildHandler {
	return &BuildHandler{
		builder: builder,
		timeout: timeout,
	}
}

// HandleRebuild kicks off an index rebuild in the background. Returns 409
// while another build is running; build failures are logged and the
// previous generation keeps serving.
func (h *BuildHandler) HandleRebuild(c *fiber.Ctx) error {
	if err := h.builder.BuildAsync(h.timeout); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"result": "rebuild started"})
}
