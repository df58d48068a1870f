package middleware

import "github.com/gin-gonic/gin"

// ContentSecurityPolicy forbids every resource type. notifyd serves JSON and
// redirects only; the unsubscribe confirmation page lives on the frontend.
const ContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders hardens API responses. Responses are marked no-store since
// unsubscribe and worker payloads carry tokens and user email addresses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", ContentSecurityPolicy)
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}
