package session

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Starters maps each language to the snippet a new buffer starts with.
type Starters map[Language]string

// DefaultStarters returns the built-in starter snippets.
func DefaultStarters() Starters {
	return Starters{
		LanguageJavaScript: "// Start coding here\nconsole.log(\"Hello World\");",
		LanguagePython:     "# Start coding here\nprint(\"Hello World\")",
	}
}

// For returns the starter for l, falling back to the built-in snippet.
func (s Starters) For(l Language) string {
	if code, ok := s[l]; ok {
		return code
	}
	return DefaultStarters()[l]
}

// IsStarter reports whether code is the untouched starter of any language.
func (s Starters) IsStarter(code string) bool {
	for _, l := range Languages() {
		if code == s.For(l) {
			return true
		}
	}
	return false
}

// LoadStarters reads starter overrides from a YAML file of the form
//
//	javascript: |
//	  console.log("hi")
//	python: |
//	  print("hi")
//
// Languages missing from the file keep their built-in snippet.
func LoadStarters(path string) (Starters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading starters %s: %w", path, err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing starters %s: %w", path, err)
	}

	starters := DefaultStarters()
	for name, code := range raw {
		l, err := ParseLanguage(name)
		if err != nil {
			return nil, fmt.Errorf("parsing starters %s: %w", path, err)
		}
		starters[l] = code
	}
	return starters, nil
}
