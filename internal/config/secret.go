package config

// Secret is a string type that redacts itself when printed or marshaled.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// MarshalYAML ensures secrets are redacted when the config is dumped back
// to YAML for logging.
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// MarshalJSON ensures secrets are redacted when marshaled to JSON.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
