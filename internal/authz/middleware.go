package authz

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/sessionvault/internal/clock"
	"github.com/mbd888/sessionvault/internal/metrics"
)

const (
	HeaderSigner    = "X-Vault-Signer"
	HeaderSignature = "X-Vault-Signature"
	HeaderTimestamp = "X-Vault-Timestamp"

	// ContextKeySigner holds the verified signer in the gin context.
	ContextKeySigner = "authSigner"
)

// Verifier checks signed requests and rejects replays within the freshness window.
type Verifier struct {
	clock  clock.Clock
	maxAge time.Duration

	mu   sync.Mutex
	seen map[string]time.Time // signer|message -> expiry
}

// NewVerifier accepts signatures whose timestamp is within maxAge of now.
func NewVerifier(c clock.Clock, maxAge time.Duration) *Verifier {
	return &Verifier{
		clock:  c,
		maxAge: maxAge,
		seen:   make(map[string]time.Time),
	}
}

// Middleware verifies the signature headers when present. Requests without
// them pass through unauthenticated; operations that need a principal will
// then fail with ErrNotAuthorized.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sig := c.GetHeader(HeaderSignature)
		if sig == "" {
			c.Next()
			return
		}

		claimed := strings.ToLower(c.GetHeader(HeaderSigner))
		ts, err := strconv.ParseInt(c.GetHeader(HeaderTimestamp), 10, 64)
		if err != nil || claimed == "" {
			abort(c, "invalid_signature", "X-Vault-Signer and a unix X-Vault-Timestamp are required with X-Vault-Signature")
			return
		}

		now := v.clock.Now()
		signedAt := time.Unix(ts, 0)
		if signedAt.Before(now.Add(-v.maxAge)) || signedAt.After(now.Add(v.maxAge)) {
			abort(c, "stale_signature", "Request timestamp is outside the accepted window")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abort(c, "invalid_request", "Could not read request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		msg := RequestMessage(c.Request.Method, c.Request.URL.Path, body, ts)
		signer, err := RecoverAddress(msg, sig)
		if err != nil || signer != claimed {
			abort(c, "invalid_signature", "Signature does not match X-Vault-Signer")
			return
		}

		if !v.markSeen(signer+"|"+msg, now) {
			abort(c, "replayed_signature", "Signature has already been used")
			return
		}

		c.Set(ContextKeySigner, signer)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), signer))
		c.Next()
	}
}

// markSeen records a signed message and reports whether it was fresh.
func (v *Verifier) markSeen(key string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	for k, exp := range v.seen {
		if now.After(exp) {
			delete(v.seen, k)
		}
	}
	if _, dup := v.seen[key]; dup {
		return false
	}
	// A message can be presented until its timestamp leaves the window.
	v.seen[key] = now.Add(2 * v.maxAge)
	return true
}

func abort(c *gin.Context, code, msg string) {
	metrics.SignatureRejections.WithLabelValues(code).Inc()
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   code,
		"message": msg,
	})
}
