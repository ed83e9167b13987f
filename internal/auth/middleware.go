package auth

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskoracle/internal/logging"
)

// ContextKeyCaller is the gin context key holding the verified caller address
const ContextKeyCaller = "oracleCaller"

// RequireSignature rejects requests without a valid signature and stores the
// recovered caller in the gin context.
func RequireSignature(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_request",
					"message": "Could not read request body",
				})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		caller, err := v.Verify(
			c.Request.Method,
			c.Request.URL.Path,
			body,
			c.GetHeader(HeaderTimestamp),
			c.GetHeader(HeaderSignature),
		)
		if err != nil {
			message := "Invalid request signature."
			switch {
			case errors.Is(err, ErrMissingSignature):
				message = "Signed request required. Include '" + HeaderTimestamp + "' and '" + HeaderSignature + "' headers."
			case errors.Is(err, ErrStaleSignature):
				message = "Signature timestamp is outside the allowed window."
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": message,
			})
			return
		}

		c.Set(ContextKeyCaller, caller)
		c.Request = c.Request.WithContext(logging.WithCaller(c.Request.Context(), caller.Hex()))
		c.Next()
	}
}

// Caller returns the verified caller address from context
func Caller(c *gin.Context) (common.Address, bool) {
	v, exists := c.Get(ContextKeyCaller)
	if !exists {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
