// Package rscope carries per-request identifiers through the request's
// context.Context. Values set here are visible to any code running on
// behalf of one invocation, including handlers executed on the blocking
// worker path, and never leak between concurrent requests.
package rscope

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header names recognized on inbound invocation requests.
const (
	RequestIDHeader     = "X-Amzn-Bedrock-AgentCore-Runtime-Request-Id"
	SessionHeader       = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"
	AccessTokenHeader   = "WorkloadAccessToken"
	CallbackURLHeader   = "OAuth2CallbackUrl"
	AuthorizationHeader = "Authorization"
	CustomHeaderPrefix  = "X-Amzn-Bedrock-AgentCore-Runtime-Custom-"
)

// RequestContext is the per-invocation metadata handed to handlers.
// It is built fresh for each request and immutable afterwards.
type RequestContext struct {
	SessionID      string
	RequestHeaders map[string]string
}

type (
	requestIDKey   struct{}
	sessionIDKey   struct{}
	accessTokenKey struct{}
	callbackURLKey struct{}
	headersKey     struct{}
)

// Build derives a context carrying the request's scope values and
// returns the RequestContext for the handler. A missing request id is
// replaced with a generated UUID. If anything goes wrong while reading
// headers the scope degrades to an empty session and a fresh request
// id; building never fails.
func Build(ctx context.Context, r *http.Request) (out context.Context, rc RequestContext) {
	defer func() {
		if recover() != nil {
			out = WithRequestID(ctx, uuid.NewString())
			rc = RequestContext{}
		}
	}()
	return build(ctx, r)
}

func build(ctx context.Context, r *http.Request) (context.Context, RequestContext) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx = WithRequestID(ctx, requestID)

	sessionID := r.Header.Get(SessionHeader)
	if sessionID != "" {
		ctx = WithSessionID(ctx, sessionID)
	}
	if token := r.Header.Get(AccessTokenHeader); token != "" {
		ctx = WithWorkloadAccessToken(ctx, token)
	}
	if url := r.Header.Get(CallbackURLHeader); url != "" {
		ctx = WithOAuth2CallbackURL(ctx, url)
	}

	headers := map[string]string{}
	if auth := r.Header.Get(AuthorizationHeader); auth != "" {
		headers[AuthorizationHeader] = auth
	}
	for name, values := range r.Header {
		if strings.HasPrefix(strings.ToLower(name), strings.ToLower(CustomHeaderPrefix)) && len(values) > 0 {
			headers[name] = values[0]
		}
	}
	if len(headers) == 0 {
		headers = nil
	} else {
		ctx = WithRequestHeaders(ctx, headers)
	}

	return ctx, RequestContext{SessionID: sessionID, RequestHeaders: headers}
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id, or "" if none is set.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}

// WithSessionID returns a context carrying the session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// SessionID returns the session id, or "" if none is set.
func SessionID(ctx context.Context) string {
	s, _ := ctx.Value(sessionIDKey{}).(string)
	return s
}

// WithWorkloadAccessToken returns a context carrying the workload
// access token. The token is threaded through for the handler's use;
// the runtime does not validate it.
func WithWorkloadAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// WorkloadAccessToken returns the workload access token, or "".
func WorkloadAccessToken(ctx context.Context) string {
	s, _ := ctx.Value(accessTokenKey{}).(string)
	return s
}

// WithOAuth2CallbackURL returns a context carrying the OAuth2 callback URL.
func WithOAuth2CallbackURL(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, callbackURLKey{}, url)
}

// OAuth2CallbackURL returns the OAuth2 callback URL, or "".
func OAuth2CallbackURL(ctx context.Context) string {
	s, _ := ctx.Value(callbackURLKey{}).(string)
	return s
}

// WithRequestHeaders returns a context carrying the forwarded headers.
func WithRequestHeaders(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, headersKey{}, headers)
}

// RequestHeaders returns the forwarded headers, or nil.
func RequestHeaders(ctx context.Context) map[string]string {
	m, _ := ctx.Value(headersKey{}).(map[string]string)
	return m
}

// FromContext reconstructs the RequestContext from scope values.
func FromContext(ctx context.Context) RequestContext {
	return RequestContext{
		SessionID:      SessionID(ctx),
		RequestHeaders: RequestHeaders(ctx),
	}
}
