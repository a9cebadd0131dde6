package entity

import (
	"fmt"
	"net"
	"net/url"
)

// maxURLLength defines the maximum allowed length for URLs to prevent DoS attacks.
const maxURLLength = 2048

// ValidateURL validates the format and safety of an admin-supplied URL
// (source feed URLs arriving through /initialize). It checks that the URL
// is well-formed, uses HTTP/HTTPS scheme, and has a valid host, and blocks
// private IP addresses to prevent SSRF. Feed entries discovered at tick
// time go through the lighter per-entry check in the feed parser instead;
// the DNS lookup here is acceptable only because initialization is rare.
// Returns a ValidationError if the URL is invalid or empty.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}

	// DoS protection: enforce maximum URL length
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}

	// HTTPまたはHTTPSスキームのみ許可
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}

	// ホスト名の検証
	if parsedURL.Host == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}

	// SSRF対策: プライベートIPアドレスをブロック
	host := parsedURL.Hostname()
	ips, err := net.LookupIP(host)
	if err == nil && len(ips) > 0 {
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return &ValidationError{
					Field:   "url",
					Message: "url cannot point to private network",
				}
			}
		}
	}

	return nil
}

// isPrivateIP reports whether a resolved address must not be fetched.
// Blocked ranges:
//   - loopback (127.0.0.0/8, ::1)
//   - link-local (169.254.0.0/16 including the cloud metadata endpoint,
//     fe80::/10)
//   - RFC 1918 and IPv6 unique-local (10.0.0.0/8, 172.16.0.0/12,
//     192.168.0.0/16, fc00::/7)
//   - unspecified (0.0.0.0, ::), which the kernel routes to localhost
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified()
}
