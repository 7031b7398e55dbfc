package validation

import (
	"net/url"
	"strings"
)

// ValidateURL checks that raw is an absolute http(s) URL. Empty is allowed;
// callers enforce presence separately.
func ValidateURL(raw, field string, requireHTTPS bool) error {
	if raw == "" {
		return nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return Error{Field: field, Message: "invalid URL format"}
	}
	if parsed.Scheme == "" {
		return Error{Field: field, Message: "URL must include a scheme (http:// or https://)"}
	}
	if parsed.Host == "" {
		return Error{Field: field, Message: "URL must include a host"}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if requireHTTPS && scheme != "https" {
		return Error{Field: field, Message: "URL must use HTTPS"}
	}
	if scheme != "http" && scheme != "https" {
		return Error{Field: field, Message: "URL scheme must be http or https"}
	}
	return nil
}

// ValidateBaseURL is ValidateURL for service base URLs, which must not carry
// a path, query or fragment.
func ValidateBaseURL(raw, field string, requireHTTPS bool) error {
	if err := ValidateURL(raw, field, requireHTTPS); err != nil {
		return err
	}
	if raw == "" {
		return nil
	}

	parsed, _ := url.Parse(raw)
	if parsed.Path != "" && parsed.Path != "/" {
		return Error{Field: field, Message: "base URL must not contain a path"}
	}
	if parsed.RawQuery != "" {
		return Error{Field: field, Message: "base URL must not contain query parameters"}
	}
	if parsed.Fragment != "" {
		return Error{Field: field, Message: "base URL must not contain a fragment"}
	}
	return nil
}

// HostIn reports whether raw parses to a URL whose host is one of hosts.
func HostIn(raw string, hosts ...string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range hosts {
		if h != "" && host == strings.ToLower(h) {
			return true
		}
	}
	return false
}

// SafeRedirectPath returns next when it is a same-origin relative path,
// otherwise fallback. Scheme-relative ("//host") and backslash tricks are
// rejected.
func SafeRedirectPath(next, fallback string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") {
		return fallback
	}
	if strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return fallback
	}
	parsed, err := url.Parse(next)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return fallback
	}
	return next
}
