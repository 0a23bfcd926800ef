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

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// RateLimiterStore counts requests in fixed windows.
type RateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// bodies larger than this are rejected before any counter is touched
const maxSubjectBody = 1 << 20

var errBodyTooLarge = pkgerrors.New(pkgerrors.CodePayloadTooLarge, "request body too large")

// RateLimitPolicy throttles one unauthenticated surface. PerIP counts by
// client address; PerSubject counts by the sha256 of one top-level JSON string
// field (email when SubjectField is empty). A zero Window disables the policy.
type RateLimitPolicy struct {
	Name         string
	Window       time.Duration
	PerIP        int
	PerSubject   int
	SubjectField string
}

type rateCheck struct {
	scope string
	key   string
	limit int
	attrs map[string]any
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerSubject > 0)
}

func (p RateLimitPolicy) name() string {
	if name := strings.ToLower(strings.TrimSpace(p.Name)); name != "" {
		return name
	}
	return "auth"
}

func (p RateLimitPolicy) field() string {
	if p.SubjectField == "" {
		return "email"
	}
	return p.SubjectField
}

// checks lists the counters a request must pass, IP first. Reading the
// subject consumes the body, so it is restored for the next handler.
func (p RateLimitPolicy) checks(r *http.Request) ([]rateCheck, error) {
	var out []rateCheck
	if ip := clientIP(r); p.PerIP > 0 && ip != "" {
		out = append(out, rateCheck{
			scope: "ip",
			key:   "ip:" + p.name() + ":" + ip,
			limit: p.PerIP,
			attrs: map[string]any{"ip": ip},
		})
	}
	if p.PerSubject <= 0 || r.Body == nil {
		return out, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubjectBody+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request")
	}
	if len(body) > maxSubjectBody {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if subject := subjectValue(body, p.field()); subject != "" {
		sum := sha256.Sum256([]byte(subject))
		hash := hex.EncodeToString(sum[:])
		out = append(out, rateCheck{
			scope: p.field(),
			key:   p.field() + ":" + p.name() + ":" + hash,
			limit: p.PerSubject,
			attrs: map[string]any{"subject_hash": hash},
		})
	}
	return out, nil
}

// RateLimit rejects requests over any of the policy's counters with 429 and a
// Retry-After of one window. Limiter failures surface as dependency errors.
func RateLimit(policy RateLimitPolicy, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			checks, err := policy.checks(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			for _, check := range checks {
				allowed, count, err := store.FixedWindowAllow(ctx, check.key, int64(check.limit), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					rejectRateLimited(ctx, logg, w, policy, check, count)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy RateLimitPolicy, check rateCheck, count int64) {
	if logg != nil {
		fields := map[string]any{
			"scope":          check.scope,
			"policy":         policy.name(),
			"attempts":       count,
			"limit":          check.limit,
			"window_seconds": int(policy.Window.Seconds()),
		}
		for k, v := range check.attrs {
			fields[k] = v
		}
		logg.Warn(logg.WithFields(ctx, fields), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Round(time.Second).Seconds())))
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// clientIP prefers the first X-Forwarded-For hop, as set by the load balancer.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func subjectValue(payload []byte, field string) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	var value string
	if err := json.Unmarshal(body[field], &value); err != nil {
		return ""
	}
	value = strings.TrimSpace(value)
	// emails compare case-insensitively; tokens do not
	if field == "email" {
		value = strings.ToLower(value)
	}
	return value
}
