package logger

import (
	"io"
	"regexp"
)

const mask = "[REDACTED]"

// Redactor masks credentials and payment data in log lines
type Redactor struct {
	rules []*regexp.Regexp
}

// Built-in rules. A rule with a "keep" group retains that prefix, so field
// names stay readable.
var defaultRules = []string{
	`sk-(?:ant-)?[A-Za-z0-9_-]{20,}`,
	`(?P<keep>Bearer\s+)[A-Za-z0-9._~+/-]+=*`,
	`tok_[A-Za-z0-9_]+`,
	`(?i)(?P<keep>"?(?:api[_-]?key|client[_-]?secret|secret)"?\s*[:=]\s*"?)[^\s",}]+`,
	// card numbers in groups of four or as one run of 13-19 digits
	`\b(?:\d{4}[ -]){3}\d{1,7}\b|\b\d{13,19}\b`,
}

// NewRedactor creates a redactor with the built-in rules
func NewRedactor() *Redactor {
	r := &Redactor{}
	for _, p := range defaultRules {
		r.rules = append(r.rules, regexp.MustCompile(p))
	}
	return r
}

// AddPattern adds a rule. A named group "keep" is preserved in front of the mask.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, re)
	return nil
}

// Redact applies every rule to s
func (r *Redactor) Redact(s string) string {
	for _, re := range r.rules {
		if keep := re.SubexpIndex("keep"); keep > 0 {
			s = re.ReplaceAllString(s, "${keep}"+mask)
			continue
		}
		s = re.ReplaceAllLiteralString(s, mask)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		if _, err := io.WriteString(w, r.Redact(string(p))); err != nil {
			return 0, err
		}
		// report the original length; zerolog treats short writes as errors
		return len(p), nil
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
