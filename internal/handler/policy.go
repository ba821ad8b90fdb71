package handler

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/cexgate/cexgate/internal/pkg/apperrors"
	"github.com/cexgate/cexgate/internal/pkg/logger"
	"github.com/cexgate/cexgate/internal/policy"
)

// PolicyHandler exposes the active policy snapshot and a manual reload for
// deployments that run without the file watcher.
type PolicyHandler struct {
	store *policy.Store
	path  string
}

func NewPolicyHandler(store *policy.Store, path string) *PolicyHandler {
	return &PolicyHandler{store: store, path: path}
}

// Show handles GET /v1/policy.
func (h *PolicyHandler) Show(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Get())
}

// Reload handles POST /v1/policy/reload. A file that fails to parse leaves
// the running snapshot untouched.
func (h *PolicyHandler) Reload(c *gin.Context) {
	raw, err := os.ReadFile(h.path)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrPolicyLoad, "policy file unreadable: "+err.Error(), err))
		c.Abort()
		return
	}
	if err := h.store.Reload(raw); err != nil {
		c.Error(apperrors.New(apperrors.ErrPolicyLoad, err.Error(), err))
		c.Abort()
		return
	}
	logger.Info("policy reloaded by admin request", "path", h.path)
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}
