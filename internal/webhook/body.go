package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

type decodedPayloadKey struct{}

// WithDecodedPayload attaches a payload that an upstream middleware already
// decoded from the request body. The handler then uses it instead of reading
// the body, and verifies the signature over its JSON encoding.
func WithDecodedPayload(ctx context.Context, payload map[string]any) context.Context {
	return context.WithValue(ctx, decodedPayloadKey{}, payload)
}

// DecodedPayload returns the payload set by WithDecodedPayload.
func DecodedPayload(ctx context.Context) (map[string]any, bool) {
	p, ok := ctx.Value(decodedPayloadKey{}).(map[string]any)
	return p, ok && p != nil
}

// requestBody is the body in the form the signature was computed over, plus
// the payload when an upstream step already decoded it.
type requestBody struct {
	raw     []byte
	payload map[string]any
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) (requestBody, error) {
	if p, ok := DecodedPayload(r.Context()); ok {
		raw, err := canonicalJSON(p)
		if err != nil {
			return requestBody{}, fmt.Errorf("encode decoded payload: %w", err)
		}
		return requestBody{raw: raw, payload: p}, nil
	}

	if r.Body == nil {
		return requestBody{}, ErrNoBody
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize))
	if err != nil {
		return requestBody{}, err
	}
	return requestBody{raw: raw}, nil
}

// canonicalJSON encodes a decoded payload compactly with sorted keys and
// without HTML escaping, so "<", ">" and "&" stay as the sender wrote them.
func canonicalJSON(payload map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// decodePayload parses a raw body as a JSON object. Form-encoded bodies carry
// the JSON in their "payload" field.
func decodePayload(raw []byte, contentType string) (map[string]any, error) {
	text := string(raw)
	if isFormEncoded(contentType) {
		values, err := url.ParseQuery(text)
		if err != nil {
			return nil, err
		}
		text = values.Get("payload")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, ErrPayloadNotJSON
	}
	return payload, nil
}

func isFormEncoded(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}
