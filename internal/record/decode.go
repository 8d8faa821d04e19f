package record

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// TypeKey is the optional explicit kind tag carried by raw documents.
const TypeKey = "_type"

// ErrUnknownKind is returned when a raw document cannot be classified.
var ErrUnknownKind = errors.New("unknown record kind")

// InferKind classifies a raw document. An explicit _type tag wins; otherwise
// the field shape decides.
func InferKind(raw map[string]any) (Kind, error) {
	if tag, ok := raw[TypeKey].(string); ok {
		k := Kind(strings.ToLower(strings.TrimSpace(tag)))
		if k.Valid() {
			return k, nil
		}
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
	_, hasReviews := raw["reviews_count"]
	_, hasFreelancer := raw["freelancer_id"]
	_, hasAuthor := raw["author"]
	_, hasPrice := raw["price"]
	switch {
	case hasReviews:
		return KindFreelancer, nil
	case hasFreelancer && hasAuthor:
		return KindReview, nil
	case hasFreelancer && hasPrice:
		return KindService, nil
	default:
		return "", ErrUnknownKind
	}
}

// Decode converts a raw document into its typed record. Input is decoded
// weakly so "true", 1 and "1" all become true for boolean fields.
func Decode(raw map[string]any) (Record, error) {
	kind, err := InferKind(raw)
	if err != nil {
		return nil, err
	}
	var out Record
	switch kind {
	case KindFreelancer:
		out = &Freelancer{}
	case KindReview:
		out = &Review{}
	case KindService:
		out = &Service{}
	case KindCountry:
		out = &Country{}
	case KindSource:
		out = &Source{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if kind == KindCountry || kind == KindSource {
		raw = withMongoID(raw)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(lenientTimeHook),
		WeaklyTypedInput: true,
		Result:           out,
		ZeroFields:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return out, nil
}

// withMongoID accepts reference documents exported with a plain "id" key.
func withMongoID(raw map[string]any) map[string]any {
	if _, ok := raw["_id"]; ok {
		return raw
	}
	id, ok := raw["id"]
	if !ok {
		return raw
	}
	out := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out["_id"] = id
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// lenientTimeHook parses known layouts and leaves anything else as the zero
// time so the normalizer can default it.
func lenientTimeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	switch v := data.(type) {
	case time.Time:
		return v, nil
	case string:
		return ParseTime(v), nil
	default:
		if from.Kind() == reflect.String {
			return ParseTime(fmt.Sprint(v)), nil
		}
		return time.Time{}, nil
	}
}

// ParseTime tries the accepted timestamp layouts and returns the zero time
// when none match.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
