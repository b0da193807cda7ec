// Package endpoint validates user supplied URLs before any network call is
// made with them.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint is a validated http(s) base URL with no trailing slash.
type Endpoint struct {
	raw string
	u   *url.URL
}

// String returns the normalized URL.
func (e Endpoint) String() string {
	return e.raw
}

// IsZero reports whether e was never validated.
func (e Endpoint) IsZero() bool {
	return e.raw == ""
}

// Host returns the host[:port] part.
func (e Endpoint) Host() string {
	if e.u == nil {
		return ""
	}
	return e.u.Host
}

// Join appends a path segment, e.g. Join("frame") on http://a gives http://a/frame.
func (e Endpoint) Join(path string) string {
	if e.u == nil {
		return ""
	}
	return e.u.JoinPath(path).String()
}

// ValidationError describes why a URL was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// Validate checks raw for scheme safety and normalizes it.
func Validate(raw string) (Endpoint, error) {
	return ValidateField("url", raw)
}

// ValidateField is Validate with the offending field named in the error.
// An endpoint is a base URL: credentials, a query or a fragment are rejected.
func ValidateField(field, raw string) (Endpoint, error) {
	u, err := parse(field, raw)
	if err != nil {
		return Endpoint{}, err
	}

	switch {
	case u.User != nil:
		return Endpoint{}, &ValidationError{Field: field, Reason: "URL must not contain credentials"}
	case u.RawQuery != "" || u.ForceQuery:
		return Endpoint{}, &ValidationError{Field: field, Reason: "URL must not contain a query"}
	case u.Fragment != "" || strings.Contains(strings.TrimSpace(raw), "#"):
		return Endpoint{}, &ValidationError{Field: field, Reason: "URL must not contain a fragment"}
	}

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")
	return Endpoint{raw: u.String(), u: u}, nil
}

// ValidateResource checks the scheme and host of a resource URL such as an
// image address. The URL is kept as given apart from surrounding whitespace.
func ValidateResource(field, raw string) (Endpoint, error) {
	u, err := parse(field, raw)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{raw: strings.TrimSpace(raw), u: u}, nil
}

func parse(field, raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &ValidationError{Field: field, Reason: "URL is empty"}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, &ValidationError{Field: field, Reason: "URL could not be parsed"}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return nil, &ValidationError{Field: field, Reason: "URL has no scheme"}
	}
	if !allowedSchemes[scheme] {
		return nil, &ValidationError{Field: field, Reason: fmt.Sprintf("scheme %q is not allowed", scheme)}
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, &ValidationError{Field: field, Reason: "URL has no host"}
	}
	u.Scheme = scheme
	return u, nil
}
