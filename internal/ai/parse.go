package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedResponse = errors.New("malformed model response")
	ErrInvalidListing    = errors.New("model response failed listing schema")
)

type rawPricing struct {
	Min        *float64 `json:"min"`
	Max        *float64 `json:"max"`
	Suggested  *float64 `json:"suggested"`
	Confidence *float64 `json:"confidence"`
	Currency   *string  `json:"currency"`
	Reasoning  *string  `json:"reasoning"`
}

type rawListing struct {
	Title         *string         `json:"title"`
	Description   *string         `json:"description"`
	Condition     *string         `json:"condition"`
	ItemSpecifics map[string]any  `json:"itemSpecifics"`
	Pricing       *rawPricing     `json:"pricing"`
	Keywords      []string        `json:"keywords"`
	CategoryID    json.RawMessage `json:"categoryId"`
	VisibleFlaws  []string        `json:"visibleFlaws"`
	AIConfidence  *float64        `json:"aiConfidence"`
}

// ParseListing turns raw model text into a normalized, validated Listing.
// Decode failures wrap ErrMalformedResponse and schema violations wrap
// ErrInvalidListing.
func ParseListing(text string) (*Listing, error) {
	obj, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}
	var raw rawListing
	dec := json.NewDecoder(bytes.NewReader(obj))
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	l, err := normalize(&raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateListing(l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidListing, err)
	}
	return l, nil
}

// extractJSONObject returns the outermost {...} span, tolerating code fences
// or prose around it.
func extractJSONObject(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no json object in %d bytes", ErrMalformedResponse, len(text))
	}
	return []byte(text[start : end+1]), nil
}

func normalize(raw *rawListing) (*Listing, error) {
	l := &Listing{
		Title:         strings.TrimSpace(deref(raw.Title, "")),
		Description:   strings.TrimSpace(deref(raw.Description, "")),
		Condition:     strings.TrimSpace(deref(raw.Condition, DefaultCondition)),
		ItemSpecifics: normalizeSpecifics(raw.ItemSpecifics),
		Keywords:      cleanList(raw.Keywords),
		VisibleFlaws:  cleanList(raw.VisibleFlaws),
		AIConfidence:  deref(raw.AIConfidence, 0.5),
		Pricing: Pricing{
			Confidence: 0.5,
			Currency:   "USD",
		},
	}
	if p := raw.Pricing; p != nil {
		l.Pricing.Min = deref(p.Min, 0)
		l.Pricing.Max = deref(p.Max, 0)
		l.Pricing.Suggested = deref(p.Suggested, 0)
		l.Pricing.Confidence = deref(p.Confidence, 0.5)
		l.Pricing.Currency = strings.ToUpper(strings.TrimSpace(deref(p.Currency, "USD")))
		if p.Reasoning != nil && strings.TrimSpace(*p.Reasoning) != "" {
			r := strings.TrimSpace(*p.Reasoning)
			l.Pricing.Reasoning = &r
		}
	}
	cat, err := normalizeCategory(raw.CategoryID)
	if err != nil {
		return nil, err
	}
	l.CategoryID = cat
	return l, nil
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// normalizeSpecifics drops null entries and stringifies scalar values.
func normalizeSpecifics(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

func normalizeCategory(raw json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		s = n.String()
		return &s, nil
	}
	return nil, fmt.Errorf("%w: categoryId is %s", ErrMalformedResponse, string(trimmed))
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
