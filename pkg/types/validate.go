package types

import (
	"errors"
	"fmt"
	"strings"
)

// reservedSlugs are personality slugs that can never be claimed by users.
var reservedSlugs = map[string]bool{
	"admin":   true,
	"system":  true,
	"default": true,
}

// ValidateUUID checks that s is a canonical 8-4-4-4-12 hex UUID.
// Mixed case is accepted.
func ValidateUUID(s string) error {
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return fmt.Errorf("uuid %q: expected 5 hyphen-separated segments, got %d", s, len(parts))
	}
	lengths := [5]int{8, 4, 4, 4, 12}
	for i, part := range parts {
		if len(part) != lengths[i] {
			return fmt.Errorf("uuid %q: segment %d has length %d, want %d", s, i, len(part), lengths[i])
		}
		for _, r := range part {
			if !isHex(r) {
				return fmt.Errorf("uuid %q: segment %d contains non-hex character %q", s, i, r)
			}
		}
	}
	return nil
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// ValidateSlug checks a personality slug.
//
// Rules:
//   - length 1..64
//   - lowercase letters, digits, and hyphens only
//   - no leading or trailing hyphen, no consecutive hyphens
//   - not a reserved name (admin, system, default)
func ValidateSlug(slug string) error {
	var errs []error

	if len(slug) < 1 || len(slug) > 64 {
		errs = append(errs, fmt.Errorf("slug length must be 1..64, got %d", len(slug)))
	}
	for _, r := range slug {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' {
			errs = append(errs, fmt.Errorf("slug contains invalid character %q", r))
			break
		}
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		errs = append(errs, errors.New("slug must not start or end with a hyphen"))
	}
	if strings.Contains(slug, "--") {
		errs = append(errs, errors.New("slug must not contain consecutive hyphens"))
	}
	if reservedSlugs[slug] {
		errs = append(errs, fmt.Errorf("slug %q is reserved", slug))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// ValidateDaysToKeep checks a result-cleanup retention period.
// The accepted range is [1, 365] days.
func ValidateDaysToKeep(days int) error {
	if days < 1 || days > 365 {
		return fmt.Errorf("daysToKeep must be in [1, 365], got %d", days)
	}
	return nil
}
