package download

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ParseChecksum accepts "sha256:<hex>", "sha512:<hex>" or a bare hex string
// (64 characters for sha256, 128 for sha512).
func ParseChecksum(s string) (digest.Digest, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty checksum")
	}
	if strings.Contains(s, ":") {
		d, err := digest.Parse(strings.ToLower(s))
		if err != nil {
			return "", fmt.Errorf("invalid checksum %q: %w", s, err)
		}
		return d, nil
	}

	s = strings.ToLower(s)
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid checksum %q: not hex", s)
	}
	var d digest.Digest
	switch len(s) {
	case 64:
		d = digest.NewDigestFromEncoded(digest.SHA256, s)
	case 128:
		d = digest.NewDigestFromEncoded(digest.SHA512, s)
	default:
		return "", fmt.Errorf("invalid checksum %q: unsupported length %d", s, len(s))
	}
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("invalid checksum %q: %w", s, err)
	}
	return d, nil
}
