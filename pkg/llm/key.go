package llm

import (
	"fmt"
	"os"
	"strings"

	apperrors "github.com/computerscienceiscool/llm-autorun/pkg/errors"
)

// ResolveAPIKey returns key when set, otherwise the value of the keyEnv variable.
// There is no built-in fallback.
func ResolveAPIKey(key, keyEnv string) (string, error) {
	if key = strings.TrimSpace(key); key != "" {
		return key, nil
	}
	keyEnv = strings.TrimSpace(keyEnv)
	if keyEnv != "" {
		if v := strings.TrimSpace(os.Getenv(keyEnv)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: set --api-key, AUTORUN_API_KEY or host env %s", apperrors.ErrMissingAPIKey, keyEnv)
}
