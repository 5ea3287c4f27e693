package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/authgate/internal/auth/jwt"
	"github.com/vyrodovalexey/authgate/internal/observability"
)

// tracerName identifies gate spans.
const tracerName = "github.com/vyrodovalexey/authgate/internal/auth"

// SessionReader resolves the session for a request. A nil return means the
// request has no session.
type SessionReader func(r *http.Request) Session

// Gate is HTTP middleware that authenticates every request whose path is
// not in the public set. Accepted requests reach the next handler with an
// Identity in the context; rejected requests get a JSON error response and
// the next handler is never invoked.
type Gate struct {
	verifier    jwt.Verifier
	publicPaths map[string]struct{}
	sessions    SessionReader
	extract     Extractor
	logger      observability.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

// GateOption is a functional option for configuring the gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger for the gate.
func WithGateLogger(logger observability.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithGateMetrics sets the metrics for the gate.
func WithGateMetrics(metrics *Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// WithSessionReader sets the session source for credential extraction.
func WithSessionReader(sessions SessionReader) GateOption {
	return func(g *Gate) {
		g.sessions = sessions
	}
}

// WithExtractor overrides the credential extractor.
func WithExtractor(extract Extractor) GateOption {
	return func(g *Gate) {
		g.extract = extract
	}
}

// NewGate creates a gate in front of the given verifier. Public paths are
// matched exactly against the request path, not by prefix.
func NewGate(verifier jwt.Verifier, publicPaths []string, opts ...GateOption) *Gate {
	g := &Gate{
		verifier:    verifier,
		publicPaths: make(map[string]struct{}, len(publicPaths)),
		extract:     ExtractCredential,
		logger:      observability.NopLogger(),
		tracer:      otel.Tracer(tracerName),
	}

	for _, path := range publicPaths {
		g.publicPaths[path] = struct{}{}
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// IsPublic reports whether the path is exempt from authentication.
func (g *Gate) IsPublic(path string) bool {
	_, ok := g.publicPaths[path]
	return ok
}

// Middleware returns the gate as net/http middleware.
func (g *Gate) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			if g.IsPublic(r.URL.Path) {
				g.metrics.RecordDecision(ResultPublic, CredentialAbsent.String(), time.Since(start))
				next.ServeHTTP(w, r)
				return
			}

			ctx, span := g.tracer.Start(r.Context(), "auth.gate",
				trace.WithAttributes(attribute.String("http.target", r.URL.Path)),
			)
			defer span.End()

			var sess Session
			if g.sessions != nil {
				sess = g.sessions(r)
			}
			cred := g.extract(r, sess)
			span.SetAttributes(attribute.String("auth.credential", cred.Kind.String()))

			switch cred.Kind {
			case CredentialAbsent:
				g.metrics.RecordDecision(ResultNoCredential, cred.Kind.String(), time.Since(start))
				g.reject(w, r, http.StatusBadRequest, ErrNoCredential.Error())
				return
			case CredentialMalformed:
				g.metrics.RecordDecision(ResultMalformed, cred.Kind.String(), time.Since(start))
				g.reject(w, r, http.StatusBadRequest, ErrMalformedHeader.Error())
				return
			}

			provider, claims, err := g.verifier.Verify(ctx, cred.Token)
			if err != nil {
				g.metrics.RecordDecision(ResultInvalidToken, cred.Kind.String(), time.Since(start))
				g.logger.Info("request rejected",
					observability.String("path", r.URL.Path),
					observability.String("credential", cred.Kind.String()),
					observability.Error(err),
				)
				g.reject(w, r, http.StatusUnauthorized, rejectionMessages(err)...)
				return
			}

			span.SetAttributes(attribute.String("auth.provider", provider))
			g.metrics.RecordDecision(ResultAuthenticated, cred.Kind.String(), time.Since(start))

			identity := &Identity{
				Provider: provider,
				Subject:  claims.Subject(),
				RawToken: cred.Token,
				Claims:   claims,
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(ctx, identity)))
		})
	}
}

// reject writes the error response. The body shape is {"errors": [...]}.
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, status int, messages ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := map[string][]string{"errors": messages}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Warn("failed to write rejection response",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
	}
}

// rejectionMessages flattens a verification error into response messages.
func rejectionMessages(err error) []string {
	var verr *jwt.VerificationError
	if errors.As(err, &verr) && len(verr.Messages) > 0 {
		return verr.Messages
	}
	return []string{err.Error()}
}
