package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
)

// parseAllowList turns addresses and CIDR ranges into prefixes. Single
// addresses become /32 or /128. Unparseable entries are returned apart.
func parseAllowList(entries []string) (allowed []netip.Prefix, invalid []string) {
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			allowed = append(allowed, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			allowed = append(allowed, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
			continue
		}
		invalid = append(invalid, e)
	}
	return allowed, invalid
}

// IPWhitelist admits only clients inside one of the listed addresses or
// CIDR ranges. An empty list admits everyone; a list of nothing but
// invalid entries admits no one.
func IPWhitelist(entries []string) gin.HandlerFunc {
	allowed, invalid := parseAllowList(entries)
	open := len(allowed) == 0 && len(invalid) == 0
	return func(c *gin.Context) {
		if open {
			c.Next()
			return
		}
		if addr, err := netip.ParseAddr(c.ClientIP()); err == nil {
			addr = addr.Unmap()
			for _, p := range allowed {
				if p.Contains(addr) {
					c.Next()
					return
				}
			}
		}
		abort(c, http.StatusForbidden, "ip_denied", "Access denied")
	}
}
