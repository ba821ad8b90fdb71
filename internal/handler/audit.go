package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cexgate/cexgate/internal/pkg/apperrors"
	"github.com/cexgate/cexgate/internal/service"
)

// AuditHandler exposes the audit trail to operators. Listing is admin-gated;
// the route is mounted behind the admin key middleware.
type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List handles GET /v1/audit with optional exchange, limit, from and to
// query parameters. Timestamps accept RFC3339 or unix seconds.
func (h *AuditHandler) List(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	var fromPtr, toPtr *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := parseAuditTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidArgument("from: " + err.Error()))
			c.Abort()
			return
		}
		fromPtr = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseAuditTime(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidArgument("to: " + err.Error()))
			c.Abort()
			return
		}
		toPtr = &t
	}

	records, err := h.svc.List(c.Request.Context(), c.Query("exchange"), limit, fromPtr, toPtr)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, records)
}

func parseAuditTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format %q", raw)
}
