package server

import (
	"net"
	"net/http"
	"strings"

	"neuromail-go/internal/config"
	"neuromail-go/internal/monitoring"

	"github.com/gin-gonic/gin"
)

// classifySource buckets a client address for access metrics.
func classifySource(ip net.IP) string {
	switch {
	case ip == nil:
		return "unknown"
	case ip.IsLoopback():
		return "loopback"
	case ip.IsPrivate():
		return "private"
	default:
		return "public"
	}
}

func recordManagementAccess(result, source string) {
	monitoring.ManagementAccessTotal.WithLabelValues(result, source).Inc()
}

// managementRemoteGuard enforces local-only access by default; when remote is
// allowed, it optionally restricts by IP/CIDR whitelist. The configuration is
// read per request so hot reloads apply.
func managementRemoteGuard(getConfig func() *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prefer Gin's ClientIP (honors TrustedProxies). Avoid trusting XFF by default.
		ip := net.ParseIP(strings.TrimSpace(c.ClientIP()))
		src := classifySource(ip)
		if src == "loopback" {
			c.Next()
			return
		}
		sec := getConfig().Security
		if !sec.ManagementAllowRemote {
			recordManagementAccess("deny", src)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "remote management disabled"})
			return
		}
		if nets := parseIPNets(sec.ManagementAllowIPs); len(nets) > 0 && !ipInNets(ip, nets) {
			recordManagementAccess("deny", src)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "ip not allowed for management"})
			return
		}
		c.Next()
	}
}

func parseIPNets(list []string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ipnet, err := net.ParseCIDR(s); err == nil {
			out = append(out, ipnet)
			continue
		}
		if ip := net.ParseIP(s); ip != nil {
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return out
}

func ipInNets(ip net.IP, nets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n != nil && n.Contains(ip) {
			return true
		}
	}
	return false
}
