package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agaseke/agaseke-backend/api/responses"
	pkgerrors "github.com/agaseke/agaseke-backend/pkg/errors"
	"github.com/agaseke/agaseke-backend/pkg/logger"
)

const identitySniffLimit = 16 << 10

type windowCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles one family of unauthenticated endpoints. PerIP
// counts by client address; PerIdentity counts by the login identity in the
// JSON body so one account cannot be sprayed from many addresses. A zero
// limit switches that dimension off.
type RateLimitPolicy struct {
	Name        string
	Window      time.Duration
	PerIP       int
	PerIdentity int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerIdentity > 0)
}

func (p RateLimitPolicy) scope(dimension, value string) string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name == "" {
		name = "auth"
	}
	return name + ":" + dimension + ":" + value
}

// RateLimit applies policy with fixed windows kept in Redis.
func RateLimit(policy RateLimitPolicy, counter windowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.PerIP > 0 {
				if ip := clientIP(r); ip != "" {
					if !admit(ctx, w, logg, counter, policy, "ip", ip, policy.PerIP) {
						return
					}
				}
			}

			if policy.PerIdentity > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, identitySniffLimit))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unable to read request body"))
					return
				}
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
				if identity := identityFromBody(body); identity != "" {
					if !admit(ctx, w, logg, counter, policy, "identity", digest(identity), policy.PerIdentity) {
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// admit counts one hit and writes the 429 itself when the window is spent.
func admit(ctx context.Context, w http.ResponseWriter, logg *logger.Logger, counter windowCounter, policy RateLimitPolicy, dimension, value string, limit int) bool {
	ok, count, err := counter.FixedWindowAllow(ctx, policy.scope(dimension, value), int64(limit), policy.Window)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiter unavailable"))
		return false
	}
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	if ok {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":    policy.Name,
			"dimension": dimension,
			"key":       value,
			"attempts":  count,
			"limit":     limit,
		}), "rate_limit.blocked")
	}
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// identityFromBody pulls the login identity out of the auth payloads, which
// name it identity, email or username depending on the endpoint.
func identityFromBody(payload []byte) string {
	var body struct {
		Identity string `json:"identity"`
		Email    string `json:"email"`
		Username string `json:"username"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return ""
	}
	for _, v := range []string{body.Identity, body.Email, body.Username} {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	return ""
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}
