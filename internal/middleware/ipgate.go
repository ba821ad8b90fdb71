package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cexgate/cexgate/internal/pkg/apperrors"
	"github.com/cexgate/cexgate/internal/pkg/logger"
)

// IPGate rejects requests from source addresses outside the configured
// allow-list before any other processing happens. Entries are single IPs or
// CIDR blocks. An empty list leaves the gate open.
type IPGate struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

func NewIPGate(allowed []string) (*IPGate, error) {
	gate := &IPGate{ips: make(map[string]struct{})}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, block, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, err
			}
			gate.nets = append(gate.nets, block)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, &net.ParseError{Type: "IP address", Text: entry}
		}
		gate.ips[ip.String()] = struct{}{}
	}
	return gate, nil
}

func (g *IPGate) open() bool {
	return len(g.ips) == 0 && len(g.nets) == 0
}

// Allowed reports whether remote may pass the gate.
func (g *IPGate) Allowed(remote string) bool {
	if g.open() {
		return true
	}
	ip := net.ParseIP(remote)
	if ip == nil {
		return false
	}
	if _, ok := g.ips[ip.String()]; ok {
		return true
	}
	for _, block := range g.nets {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func IPGateMiddleware(gate *IPGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !gate.Allowed(clientIP) {
			logger.Warn("request blocked by IP gate", "client_ip", clientIP, "path", c.Request.URL.Path)
			c.Error(apperrors.Newf(apperrors.ErrIPForbidden, "source IP %s is not allowed", clientIP))
			c.Abort()
			return
		}
		c.Next()
	}
}
