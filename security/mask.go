package security

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	emailRe      = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe      = regexp.MustCompile(`\b(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	creditCardRe = regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)
	ssnRe        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	// inlineSecretRe catches a sensitive key assigned inline within free
	// text, e.g. "password=hunter2" or "api_key: sk-abc123" appearing in a
	// model's generated content rather than as a JSON object key.
	inlineSecretRe = regexp.MustCompile(`(?i)(password|secret|api[_-]?key|token|credential)\s*[:=]\s*\S+`)
)

// sensitiveKeyRe matches a JSON key name carrying a secret, regardless of
// case or separators.
var sensitiveKeyRe = regexp.MustCompile(`(?i)password|secret|key|token|auth|credential|private|hash|salt|signature|certificate`)

// FilterOutput masks PII in string values and redacts the value of any key
// matching sensitiveKeyRe, recursively over a JSON body. Non-JSON bodies
// are run through the PII regexes verbatim and returned unchanged
// otherwise. Idempotent: running it twice produces the same output.
func (f *Filter) FilterOutput(body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return []byte(maskPII(string(body)))
	}

	masked := maskValue(v, "")
	out, err := json.Marshal(masked)
	if err != nil {
		return body
	}
	return out
}

func maskValue(v interface{}, key string) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = maskValue(child, k)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = maskValue(child, key)
		}
		return out
	case string:
		if sensitiveKeyRe.MatchString(key) {
			return maskSensitiveValue(val)
		}
		return maskPII(val)
	default:
		return val
	}
}

// maskSensitiveValue masks a value whose key name looks like a secret:
// the first 4 characters survive, the remainder is replaced with stars.
func maskSensitiveValue(s string) string {
	if s == "" {
		return s
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

// maskPII partially masks emails, phone numbers, credit-card numbers, and
// SSN-shaped strings found anywhere in s, and replaces any dangerous code
// pattern from the input stage's regex list with a sentinel — a reply
// that echoes back injected script/shell content must not carry it
// further downstream than the gateway.
func maskPII(s string) string {
	s = inlineSecretRe.ReplaceAllStringFunc(s, func(m string) string {
		idx := strings.IndexAny(m, ":=")
		if idx < 0 {
			return m
		}
		return strings.TrimRight(m[:idx+1], " ") + " [redacted]"
	})
	for _, re := range maliciousPatterns {
		s = re.ReplaceAllString(s, "[filtered]")
	}
	s = emailRe.ReplaceAllStringFunc(s, maskEmail)
	s = creditCardRe.ReplaceAllString(s, "****-****-****-****")
	s = ssnRe.ReplaceAllString(s, "***-**-****")
	s = phoneRe.ReplaceAllString(s, "***-***-****")
	return s
}

// maskEmail keeps the first two characters of the local part and the full
// domain: "jo**@example.com" for "john@example.com".
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return email
	}
	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:2] + strings.Repeat("*", len(local)-2) + domain
}
