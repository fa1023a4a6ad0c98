// Package horosafe holds the input guards used at the edges of vitrine:
// outbound URL checks against SSRF, bounded body reads and identifier
// validation for values that end up in URLs and storage keys.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// MaxResponseBody is the default cap for bounded reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

// MaxIdentifierLen bounds ValidateIdentifier.
const MaxIdentifierLen = 128

var (
	// ErrSSRF is returned when a URL targets a private or loopback address.
	ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")
	// ErrUnsafeScheme is returned when a URL is not http or https.
	ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")
	// ErrResponseTooLarge is returned by LimitedReadAll past its limit.
	ErrResponseTooLarge = errors.New("horosafe: response too large")
	// ErrInvalidIdentifier is returned by ValidateIdentifier.
	ErrInvalidIdentifier = errors.New("horosafe: invalid identifier")
)

// lookupHost is swapped in tests.
var lookupHost = net.LookupHost

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// ValidateURL checks that rawURL is http(s), names a host, and that the host
// does not resolve to a private, loopback or link-local address. A DNS
// failure is let through: the request itself will fail.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("horosafe: URL has no host")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivate(addr) {
			return ErrSSRF
		}
		return nil
	}

	addrs, err := lookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && isPrivate(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrSSRF, host, a)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, maxBytes)
	}
	return data, nil
}

// ValidateIdentifier accepts letters, digits, '_', '-', '.' and ':' up to
// MaxIdentifierLen characters.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if len(s) > MaxIdentifierLen {
		return fmt.Errorf("%w: longer than %d", ErrInvalidIdentifier, MaxIdentifierLen)
	}
	if strings.Contains(s, "..") {
		return fmt.Errorf("%w: contains \"..\"", ErrInvalidIdentifier)
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("%w: character %q", ErrInvalidIdentifier, r)
		}
	}
	return nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.' || r == ':'
}

func isPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() {
		return true
	}
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
