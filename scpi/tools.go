package scpi

import (
	"regexp"
	"strings"
)

// URLJoin joins a base URL with path segments, producing exactly one slash
// between each part. Empty segments are skipped.
func URLJoin(base string, paths ...string) string {
	url := strings.TrimSuffix(base, "/")
	for _, p := range paths {
		if p == "" {
			continue
		}
		url += "/" + strings.Trim(p, "/")
	}
	return url
}

// ExtractToken strips the "Token " scheme prefix from an Authorization
// header value.
func ExtractToken(authorization string) string {
	return strings.TrimSpace(strings.TrimPrefix(authorization, "Token"))
}

var nextLinkPattern = regexp.MustCompile(`<(.+)>; rel="next"`)

// ExtractNextLink pulls the URL out of a Link header's rel="next" entry,
// returning "" if the header holds no next link.
func ExtractNextLink(linkHeader string) string {
	match := nextLinkPattern.FindStringSubmatch(linkHeader)
	if match == nil {
		return ""
	}
	return match[1]
}
