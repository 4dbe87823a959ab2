package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/cachebound/cachebound/pkg/syncer"
)

// keyPlaceholder is the token in an endpoint template replaced by the
// (path-escaped) key.
const keyPlaceholder = "{key}"

// HTTPSource fetches JSON records over HTTP. It implements
// syncer.Source[string, V].
type HTTPSource[V any] struct {
	endpoint  string
	client    Client
	extract   string
	validator Validator
	now       func() time.Time
}

// HTTPOption configures an HTTPSource.
type HTTPOption[V any] func(*HTTPSource[V])

// WithClient overrides the HTTP client.
func WithClient[V any](client Client) HTTPOption[V] {
	return func(s *HTTPSource[V]) {
		s.client = client
	}
}

// WithExtractPath sets a gjson path applied to the response body before
// decoding, e.g. "data.items" to unwrap an envelope.
func WithExtractPath[V any](path string) HTTPOption[V] {
	return func(s *HTTPSource[V]) {
		s.extract = path
	}
}

// WithValidator sets a payload validator applied after extraction.
func WithValidator[V any](v Validator) HTTPOption[V] {
	return func(s *HTTPSource[V]) {
		s.validator = v
	}
}

// NewHTTPSource creates a source fetching from the given endpoint template.
// The template must contain the "{key}" placeholder, which is replaced by
// the path-escaped key on every fetch.
func NewHTTPSource[V any](endpoint string, opts ...HTTPOption[V]) (*HTTPSource[V], error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if !strings.Contains(endpoint, keyPlaceholder) {
		return nil, fmt.Errorf("endpoint must contain the %s placeholder", keyPlaceholder)
	}

	s := &HTTPSource[V]{
		endpoint: endpoint,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = NewDefaultClient()
	}
	return s, nil
}

// Fetch retrieves, extracts, validates, and decodes the record for key.
func (s *HTTPSource[V]) Fetch(ctx context.Context, key string) (syncer.Record[V], error) {
	var zero syncer.Record[V]

	target := strings.ReplaceAll(s.endpoint, keyPlaceholder, url.PathEscape(key))
	body, err := s.client.Get(ctx, target)
	if err != nil {
		return zero, err
	}

	if s.extract != "" {
		res := gjson.GetBytes(body, s.extract)
		if !res.Exists() {
			return zero, fmt.Errorf("response has no value at path %q", s.extract)
		}
		body = []byte(res.Raw)
	}

	if s.validator != nil {
		if err := s.validator.Validate(body); err != nil {
			return zero, fmt.Errorf("payload validation failed: %w", err)
		}
	}

	var value V
	if err := json.Unmarshal(body, &value); err != nil {
		return zero, fmt.Errorf("failed to decode payload: %w", err)
	}

	return syncer.Record[V]{
		Value:     value,
		UpdatedAt: s.now(),
	}, nil
}
