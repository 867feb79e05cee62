package validation

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxSourceNameLength bounds a full "MACHINE (Source)" name.
	MaxSourceNameLength = 253
	MaxInstanceIDLength = 100
)

// InstanceIDRegex matches directory instance ids such as "studio-a-3f9c1e2d".
var InstanceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateSourceName checks a source name taken from a request path or a
// command line before it is handed to discovery.
func ValidateSourceName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("source name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("source name is not valid UTF-8")
	}
	if len(name) > MaxSourceNameLength {
		return fmt.Errorf("source name is too long (max %d bytes)", MaxSourceNameLength)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("source name contains control characters")
		}
	}
	return nil
}

func ValidateInstanceID(id string) error {
	if id == "" {
		return fmt.Errorf("instance id is required")
	}
	if len(id) > MaxInstanceIDLength {
		return fmt.Errorf("instance id is too long (max %d characters)", MaxInstanceIDLength)
	}
	if !InstanceIDRegex.MatchString(id) {
		return fmt.Errorf("invalid instance id format")
	}
	return nil
}

// ValidateSourceAddress checks a "host:port" source address. An empty
// address is allowed and means the source is resolved by name.
func ValidateSourceAddress(addr string) error {
	if addr == "" {
		return nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid source address: %w", err)
	}
	if host == "" {
		return fmt.Errorf("source address must have a host")
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid source port %q", port)
	}
	return nil
}
