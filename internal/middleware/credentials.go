package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/cexgate/cexgate/internal/broker"
	"github.com/cexgate/cexgate/internal/pkg/apperrors"
)

const (
	HeaderAPIKey       = "X-API-Key"
	HeaderAPISecret    = "X-API-Secret"
	HeaderSecondaryKey = "X-Use-Secondary-Key"

	ContextSelectorKey = "credential_selector"
	ContextAdhocKey    = "adhoc_credentials"
)

// CredentialSelector extracts the credential routing headers into the gin
// context for the handlers. A malformed secondary-key header fails here so
// no downstream work runs on an ambiguous selection.
func CredentialSelector() gin.HandlerFunc {
	return func(c *gin.Context) {
		sel, err := broker.ParseSelector(c.GetHeader(HeaderSecondaryKey))
		if err != nil {
			c.Error(apperrors.NewInvalidArgument(err.Error()))
			c.Abort()
			return
		}
		c.Set(ContextSelectorKey, sel)

		apiKey := c.GetHeader(HeaderAPIKey)
		apiSecret := c.GetHeader(HeaderAPISecret)
		if apiKey != "" && apiSecret != "" {
			c.Set(ContextAdhocKey, &broker.Credentials{APIKey: apiKey, APISecret: apiSecret})
		}
		c.Next()
	}
}

// SelectorFrom reads the parsed selector out of the gin context.
func SelectorFrom(c *gin.Context) broker.Selector {
	if val, ok := c.Get(ContextSelectorKey); ok {
		if sel, ok := val.(broker.Selector); ok {
			return sel
		}
	}
	return broker.Primary()
}

// AdhocFrom reads header-supplied credentials out of the gin context; nil
// when the caller sent none.
func AdhocFrom(c *gin.Context) *broker.Credentials {
	if val, ok := c.Get(ContextAdhocKey); ok {
		if creds, ok := val.(*broker.Credentials); ok {
			return creds
		}
	}
	return nil
}
