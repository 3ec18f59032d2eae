package markdown

import (
	"net/url"
	"strings"
)

// landingTitlePatterns are title fragments that only appear on category
// landing pages. A product page served under one of these titles means the
// origin silently bounced the request.
var landingTitlePatterns = []string{
	"shop all",
	"new arrivals",
	"women's dresses",
	"women's clothing",
	"dresses | ",
	"tops | ",
	"search results",
	"page not found",
}

// DetectHomepageRedirect inspects a converted markdown body for signs that
// the origin redirected to a landing page: a catalogued landing title in the
// first 300 characters, or an advertised source URL whose path does not
// match the requested one.
func DetectHomepageRedirect(body, requestedURL string) (reason string, redirected bool) {
	head := body
	if len(head) > 300 {
		head = head[:300]
	}
	lowered := strings.ToLower(head)
	for _, pattern := range landingTitlePatterns {
		if strings.Contains(lowered, pattern) {
			return "landing title: " + pattern, true
		}
	}

	if src := sourceURL(body); src != "" {
		reqPath := urlPath(requestedURL)
		srcPath := urlPath(src)
		if reqPath != "" && srcPath != "" && !strings.Contains(srcPath, strings.TrimRight(reqPath, "/")) {
			return "source url mismatch: " + src, true
		}
	}
	return "", false
}

// sourceURL extracts the "URL Source:" line conversion services prepend.
func sourceURL(body string) string {
	for _, line := range strings.SplitN(body, "\n", 10) {
		if rest, ok := strings.CutPrefix(line, "URL Source:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}
