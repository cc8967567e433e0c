package common

import (
	"fmt"
	"strings"
)

const maxTokenSymbolLength = 12

// NormalizeToken canonicalises a token symbol to its uppercase form and
// validates that it is a plausible asset identifier. Symbols are restricted to
// ASCII letters and digits so they can double as storage key components.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("token symbol must not be empty")
	}
	if len(trimmed) > maxTokenSymbolLength {
		return "", fmt.Errorf("token symbol too long: %s", symbol)
	}
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return "", fmt.Errorf("token symbol contains invalid character: %s", symbol)
		}
	}
	return trimmed, nil
}
