package secret

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var bracedVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands environment variables in s.
//
// Semantics:
//   - $VAR and ${VAR} are expanded.
//   - ${VAR} with VAR unset is an error naming every missing variable.
//   - $$ emits a literal $.
func ExpandEnvStrict(s string) (string, error) {
	return ExpandStrict(s, os.LookupEnv)
}

// ExpandStrict is ExpandEnvStrict with a custom lookup.
func ExpandStrict(s string, lookup func(string) (string, bool)) (string, error) {
	const dollar = "\x00SAMPLEOPS_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollar)

	var missing []string
	for _, match := range bracedVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := lookup(match[1]); !ok && !slices.Contains(missing, match[1]) {
			missing = append(missing, match[1])
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	s = os.Expand(s, func(key string) string {
		v, _ := lookup(key)
		return v
	})
	return strings.ReplaceAll(s, dollar, "$"), nil
}
