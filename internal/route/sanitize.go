package route

import "strings"

// AllHostsName is the name fragment used when a hostname sanitizes to
// nothing, for example a bare wildcard.
const AllHostsName = "all-hosts"

// SanitizeHostname converts a hostname into a DNS-label-safe name fragment.
// Every maximal run of non-alphanumeric characters becomes a single dash,
// leading and trailing dashes are trimmed, and an empty or wildcard result
// falls back to AllHostsName.
func SanitizeHostname(hostname string) string {
	var builder strings.Builder

	builder.Grow(len(hostname))

	inRun := false

	for _, r := range hostname {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if isAlnum {
			builder.WriteRune(r)

			inRun = false

			continue
		}

		if !inRun {
			builder.WriteByte('-')

			inRun = true
		}
	}

	sanitized := strings.Trim(builder.String(), "-")
	if sanitized == "" || sanitized == "*" {
		return AllHostsName
	}

	return sanitized
}
