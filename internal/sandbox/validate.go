package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrValidation marks a script rejected before execution.
	ErrValidation = errors.New("script rejected")
	// ErrTimeout marks a script interrupted by the wall-clock limit.
	ErrTimeout = errors.New("script timed out")
)

// deniedPatterns tolerate whitespace between a name and the call or member
// access that follows it.
var deniedPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"process", regexp.MustCompile(`\bprocess\s*[.\[]`)},
	{"global", regexp.MustCompile(`\bglobal\s*[.\[]`)},
	{"globalThis", regexp.MustCompile(`\bglobalThis\b`)},
	{"window", regexp.MustCompile(`\bwindow\s*[.\[]`)},
	{"document", regexp.MustCompile(`\bdocument\s*[.\[]`)},
	{"require", regexp.MustCompile(`\brequire\s*\(`)},
	{"import", regexp.MustCompile(`\bimport\s*\(`)},
	{"eval", regexp.MustCompile(`\beval\s*\(`)},
	{"Function", regexp.MustCompile(`\bFunction\s*\(`)},
	{"constructor call", regexp.MustCompile(`\.\s*constructor\s*\(`)},
	{"constructor chain", regexp.MustCompile(`\bconstructor\s*\.\s*constructor\b`)},
	{"constructor index", regexp.MustCompile(`\[\s*["'`+"`"+`]constructor["'`+"`"+`]\s*\]`)},
	{"__proto__", regexp.MustCompile(`__proto__`)},
}

// Validate rejects empty scripts and scripts that reach for host globals.
func Validate(script string) error {
	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("%w: empty script", ErrValidation)
	}
	for _, p := range deniedPatterns {
		if p.re.MatchString(script) {
			return fmt.Errorf("%w: forbidden pattern %s", ErrValidation, p.name)
		}
	}
	return nil
}
