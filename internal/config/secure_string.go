package config

import "encoding/json"

const redactedPlaceholder = "[REDACTED]"

// SecureString wraps a credential so it never leaks into logs, String(),
// or JSON output by accident. Call Value() explicitly when the raw
// secret is needed (e.g. to hand it to the SSH client).
type SecureString string

func (s SecureString) String() string {
	return redactedPlaceholder
}

func (s SecureString) GoString() string {
	return redactedPlaceholder
}

func (s SecureString) MarshalJSON() ([]byte, error) {
	return json.Marshal(redactedPlaceholder)
}

// Value returns the underlying secret. Named distinctly from String to
// make call sites that actually need the credential stand out in review.
func (s SecureString) Value() string {
	return string(s)
}
