package policy

import (
	"strings"
)

// TopicAllowed reports whether topic passes the allowlist. An empty allowlist allows everything.
func TopicAllowed(allowlist []string, topic string) bool {
	if len(allowlist) == 0 {
		return true
	}
	norm := normalize(topic)
	for _, allowed := range allowlist {
		if normalize(allowed) == norm {
			return true
		}
	}
	return false
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
