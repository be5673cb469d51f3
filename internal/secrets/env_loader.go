package secrets

import (
	"os"
	"strings"
)

// PrefixEnvLoader returns a Loader that collects every environment variable
// starting with prefix. The prefix is stripped from the resulting keys, so
// AGENTFLEET_CRED_API_TOKEN=x loads as API_TOKEN=x.
func PrefixEnvLoader(prefix string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string)
		for _, kv := range os.Environ() {
			if !strings.HasPrefix(kv, prefix) {
				continue
			}
			k, v, ok := strings.Cut(strings.TrimPrefix(kv, prefix), "=")
			if ok && k != "" && v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}
