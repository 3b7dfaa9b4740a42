package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// tokenFile is the layout of INGEST_TOKENS_FILE:
//
//	tokens:
//	  - bitcoin
//	  - ethereum
type tokenFile struct {
	Tokens []string `yaml:"tokens"`
}

// LoadTokenList reads a YAML token list. Blank and duplicate entries are
// dropped; an empty list is an error.
func LoadTokenList(path string) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read token list: %w", err)
	}

	var file tokenFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse token list %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Tokens))
	tokens := make([]string, 0, len(file.Tokens))
	for _, t := range file.Tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tokens = append(tokens, t)
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("token list %s is empty", path)
	}
	return tokens, nil
}
