package httpauth

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/expensekeeper-client/internal/auth"
	"github.com/dtroode/expensekeeper-client/internal/logger"
	"github.com/dtroode/expensekeeper-client/internal/model"
)

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"

	// maxDrain bounds how much of a discarded body is read so the connection can be reused.
	maxDrain = 64 << 10
)

// Transport is an http.RoundTripper that attaches bearer tokens and
// transparently recovers from expired ones with at most one retry.
type Transport struct {
	base     http.RoundTripper
	guard    *auth.Guard
	excluded []string
	logger   *logger.Logger
}

// NewTransport wraps base. Requests whose path matches one of excluded
// (credential issuance and renewal) are forwarded untouched.
func NewTransport(base http.RoundTripper, guard *auth.Guard, excluded []string, logger *logger.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:     base,
		guard:    guard,
		excluded: excluded,
		logger:   logger,
	}
}

// NewClient returns an http.Client whose transport is a Transport over base.
func NewClient(base http.RoundTripper, guard *auth.Guard, excluded []string, timeout time.Duration, logger *logger.Logger) *http.Client {
	return &http.Client{
		Transport: NewTransport(base, guard, excluded, logger),
		Timeout:   timeout,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.isExcluded(req) {
		return t.base.RoundTrip(req)
	}

	getBody, buffered, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	requestID := req.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	token, attached := t.guard.Credential()
	out := prepare(req, token, attached, requestID)
	if buffered {
		if out.Body, err = getBody(); err != nil {
			return nil, err
		}
		out.GetBody = getBody
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	action, retryToken := t.guard.Assess(token, attached)
	t.logger.Debug("request unauthorized",
		"request_id", requestID,
		"method", req.Method,
		"path", req.URL.Path,
		"action", action.String())

	switch action {
	case auth.ActionPropagate:
		return resp, nil
	case auth.ActionRetry:
		discard(resp)
	case auth.ActionRefresh:
		discard(resp)
		refreshed, ok := t.guard.Refresh(req.Context(), token)
		if !ok {
			if err := req.Context().Err(); err != nil {
				return nil, err
			}
			return unauthorized(req, resp.Header), nil
		}
		retryToken = refreshed
	}

	retry := prepare(req, retryToken, true, requestID)
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
		retry.GetBody = getBody
	}

	t.guard.Retried(req.Context(), "http", action)
	return t.base.RoundTrip(retry)
}

func (t *Transport) isExcluded(req *http.Request) bool {
	path := req.URL.Path
	for _, p := range t.excluded {
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

func prepare(req *http.Request, token model.Token, attached bool, requestID string) *http.Request {
	out := req.Clone(req.Context())
	if attached {
		out.Header.Set(headerAuthorization, "Bearer "+token.AccessToken)
	}
	out.Header.Set(headerRequestID, requestID)
	return out
}

// replayableBody returns a factory producing fresh copies of the request
// body. When the request has no GetBody the body is read into memory and
// buffered is true.
func replayableBody(req *http.Request) (getBody func() (io.ReadCloser, error), buffered bool, err error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, false, nil
	}
	if req.GetBody != nil {
		return req.GetBody, false, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, false, fmt.Errorf("failed to buffer request body: %w", err)
	}

	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, true, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	_ = resp.Body.Close()
}

// unauthorized builds the 401 returned when a refresh could not produce a
// usable token. It keeps challenge headers but carries no body.
func unauthorized(req *http.Request, header http.Header) *http.Response {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Del("Content-Length")
	h.Del("Content-Type")
	h.Del("Content-Encoding")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized)),
		StatusCode:    http.StatusUnauthorized,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          http.NoBody,
		ContentLength: 0,
		Request:       req,
	}
}
