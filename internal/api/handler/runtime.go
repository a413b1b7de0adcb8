package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/openrag/opsconsole/internal/api/response"
	"github.com/openrag/opsconsole/internal/runtime"
)

// InventorySource fetches the LLM runtime inventory.
type InventorySource interface {
	Inventory(ctx context.Context) (runtime.Inventory, error)
}

// RuntimeHandler serves the LLM runtime section.
type RuntimeHandler struct {
	source InventorySource
}

// NewRuntimeHandler creates a new RuntimeHandler.
func NewRuntimeHandler(source InventorySource) *RuntimeHandler {
	return &RuntimeHandler{source: source}
}

// Get handles GET /v1/runtime. Partial failures are reported per section
// with a 200; a runtime that answered nothing is a 502.
func (h *RuntimeHandler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.source.Inventory(r.Context())
	if errors.Is(err, runtime.ErrUnreachable) {
		response.Problem(w, r, badGateway(r, "LLM runtime unreachable"))
		return
	}
	if err != nil {
		response.Error(w, r, err, "failed to load runtime inventory")
		return
	}
	response.JSON(w, r, http.StatusOK, inv)
}
