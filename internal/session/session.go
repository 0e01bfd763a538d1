package session

import (
	"fmt"
	"strings"
)

// Language selects the runtime a session's code is executed with.
type Language string

const (
	// LanguageJavaScript runs in the per-call script sandbox.
	LanguageJavaScript Language = "javascript"
	// LanguagePython runs in the shared interpreter.
	LanguagePython Language = "python"
)

// DefaultLanguage is the language of a freshly created session.
const DefaultLanguage = LanguageJavaScript

// Languages lists every supported language.
func Languages() []Language {
	return []Language{LanguageJavaScript, LanguagePython}
}

// ParseLanguage validates a language name received from a client.
func ParseLanguage(s string) (Language, error) {
	switch l := Language(strings.ToLower(strings.TrimSpace(s))); l {
	case LanguageJavaScript, LanguagePython:
		return l, nil
	default:
		return "", fmt.Errorf("unsupported language: %q", s)
	}
}

// Session is one collaboratively edited buffer.
type Session struct {
	ID       string   `json:"id"`
	Language Language `json:"language"`
	Code     string   `json:"code"`
	Output   string   `json:"output"`
}

// Patch carries the fields of an update. Nil fields are left untouched;
// set fields replace the stored value as a whole.
type Patch struct {
	Language *Language
	Code     *string
	Output   *string
}

// CodePatch returns a Patch replacing only the code.
func CodePatch(code string) Patch { return Patch{Code: &code} }

// LanguagePatch returns a Patch replacing only the language.
func LanguagePatch(l Language) Patch { return Patch{Language: &l} }

// OutputPatch returns a Patch replacing only the output.
func OutputPatch(output string) Patch { return Patch{Output: &output} }

func (p Patch) apply(s Session) Session {
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.Code != nil {
		s.Code = *p.Code
	}
	if p.Output != nil {
		s.Output = *p.Output
	}
	return s
}
