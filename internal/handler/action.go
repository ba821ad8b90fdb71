package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cexgate/cexgate/internal/middleware"
	"github.com/cexgate/cexgate/internal/model"
	"github.com/cexgate/cexgate/internal/pkg/apperrors"
	"github.com/cexgate/cexgate/internal/service"
)

type ActionHandler struct {
	dispatcher *service.Dispatcher
}

func NewActionHandler(dispatcher *service.Dispatcher) *ActionHandler {
	return &ActionHandler{dispatcher: dispatcher}
}

// Dispatch handles POST /v1/actions.
func (h *ActionHandler) Dispatch(c *gin.Context) {
	var req model.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgument(err.Error()))
		c.Abort()
		return
	}

	middleware.AddAuditContext(c, "action", req.Action)
	middleware.AddAuditContext(c, "exchange", strings.ToLower(req.Exchange))
	middleware.AddAuditContext(c, "symbol", req.Symbol)

	sel := middleware.SelectorFrom(c)
	adhoc := middleware.AdhocFrom(c)

	result, err := h.dispatcher.Dispatch(c.Request.Context(), &req, sel, adhoc)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, model.ActionResponse{Result: result})
}
