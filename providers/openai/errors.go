package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lgc202/llmx"
	"github.com/lgc202/llmx/internal/transport"
)

func (p *Provider) mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return &llmx.Error{Provider: p.name, Kind: llmx.ErrKindCanceled, Message: "request canceled", Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &llmx.Error{Provider: p.name, Kind: llmx.ErrKindTimeout, Message: "request deadline exceeded", Retryable: true, Cause: err}
	}

	var se *transport.HTTPStatusError
	if errors.As(err, &se) {
		kind, retryable := classifyHTTP(se.StatusCode)
		msg, code := parseErrorEnvelope(se.Body)
		if msg == "" {
			msg = http.StatusText(se.StatusCode)
		}
		return &llmx.Error{
			Provider:     p.name,
			Kind:         kind,
			HTTPStatus:   se.StatusCode,
			ProviderCode: code,
			Message:      msg,
			Retryable:    retryable,
			RetryAfter:   parseRetryAfter(se.Header),
			Raw:          append([]byte(nil), se.Body...),
			Cause:        err,
		}
	}

	// Anything else is a transport-level failure (DNS, reset, TLS, ...).
	return &llmx.Error{Provider: p.name, Kind: llmx.ErrKindTransport, Message: err.Error(), Retryable: true, Cause: err}
}

func classifyHTTP(status int) (llmx.ErrorKind, bool) {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmx.ErrKindAuth, false
	case http.StatusTooManyRequests:
		return llmx.ErrKindRateLimit, true
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return llmx.ErrKindBadRequest, false
	case http.StatusNotFound:
		return llmx.ErrKindNotFound, false
	case http.StatusRequestTimeout:
		return llmx.ErrKindTimeout, true
	default:
		if status >= 500 {
			return llmx.ErrKindServer, true
		}
		return llmx.ErrKindUnknown, false
	}
}

func parseErrorEnvelope(raw []byte) (message string, code string) {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == nil {
		return "", ""
	}
	message = env.Error.Message
	if env.Error.Code != nil {
		code = stringify(env.Error.Code)
	}
	return message, code
}

func parseRetryAfter(hdr http.Header) time.Duration {
	v := hdr.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
