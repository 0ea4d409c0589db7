package bookmark

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// MaxTitleLength is the maximum title length in runes.
const MaxTitleLength = 200

// CreateInput is the raw, unvalidated payload of a create request.
type CreateInput struct {
	URL   string
	Title string
}

// Draft is a create request that passed validation.
type Draft struct {
	URL   string
	Title string
}

// ParseDraft validates raw input and returns a normalized Draft.
func ParseDraft(in CreateInput) (Draft, error) {
	rawURL := strings.TrimSpace(in.URL)
	if rawURL == "" {
		return Draft{}, &ValidationError{Field: "url", Reason: "is required"}
	}

	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return Draft{}, err
	}

	title := strings.TrimSpace(in.Title)
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return Draft{}, &ValidationError{Field: "title", Reason: "must be at most 200 characters"}
	}

	return Draft{URL: normalized, Title: title}, nil
}

// NormalizeURL checks that rawURL is an absolute http(s) URL and normalizes it.
// - Lowercases the scheme and host
// - Removes default ports (80 for http, 443 for https)
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &ValidationError{Field: "url", Reason: "is not a valid URL"}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ValidationError{Field: "url", Reason: "must be an absolute http or https URL"}
	}

	if u.Host == "" || u.Hostname() == "" {
		return "", &ValidationError{Field: "url", Reason: "must include a host"}
	}

	u.Host = strings.ToLower(u.Host)

	host := u.Host
	if strings.HasSuffix(host, ":80") && u.Scheme == "http" {
		u.Host = strings.TrimSuffix(host, ":80")
	} else if strings.HasSuffix(host, ":443") && u.Scheme == "https" {
		u.Host = strings.TrimSuffix(host, ":443")
	}

	return u.String(), nil
}
