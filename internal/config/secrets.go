package config

// secretKeys lists the dot-separated keys whose values are masked on display.
var secretKeys = map[string]bool{
	"llm.api_key": true,
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// MaskSecrets returns a copy of flat with secret values shown as "***" plus
// their last four characters. Empty and non-string values pass through.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if s, ok := v.(string); ok && secretKeys[k] && s != "" {
			v = "***" + s[max(0, len(s)-4):]
		}
		out[k] = v
	}
	return out
}
