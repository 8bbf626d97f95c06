// Package env parses the sandbox environment variable specs accepted by
// the run command and the task file.
package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var keyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseSpecs resolves a list of KEY=VALUE or bare KEY specs into the env
// map injected into a task's sandbox. A bare KEY inherits its value from
// the current process environment and fails when it is not set.
func ParseSpecs(specs []string) (map[string]string, error) {
	env := make(map[string]string, len(specs))
	for _, spec := range specs {
		key, value, err := resolveSpec(spec)
		if err != nil {
			return nil, err
		}
		env[key] = value
	}

	return env, nil
}

func resolveSpec(spec string) (string, string, error) {
	if spec == "" {
		return "", "", fmt.Errorf("environment variable spec cannot be empty")
	}

	key, value, explicit := strings.Cut(spec, "=")
	if !keyRegexp.MatchString(key) {
		return "", "", fmt.Errorf("invalid environment variable key %q", key)
	}
	if explicit {
		return key, value, nil
	}

	value, ok := os.LookupEnv(key)
	if !ok {
		return "", "", fmt.Errorf("environment variable %q is not set", key)
	}

	return key, value, nil
}

// MergeMaps merges the task file env with the command line env, command
// line keys win. The result is never nil.
func MergeMaps(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}

	return merged
}
