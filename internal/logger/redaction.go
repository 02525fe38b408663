package logger

import (
	"io"
	"regexp"
	"strings"
	"sync"
)

// Mask replaces every redacted value.
const Mask = "[REDACTED]"

// minSecretLen keeps short configured values from masking ordinary words.
const minSecretLen = 8

// credentialRules match credentials the bot handles: the Discord token and
// the keys of every supported LLM provider, plus generic key=value leaks.
var credentialRules = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{30,}`),
	regexp.MustCompile(`[MNO][A-Za-z\d_-]{23,27}\.[A-Za-z\d_-]{6}\.[A-Za-z\d_-]{27,}`),
	regexp.MustCompile(`Bot\s+[A-Za-z\d._-]{20,}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
	regexp.MustCompile(`(?i)(password|pwd|secret)["\s:=]+[^\s"]+`),
	regexp.MustCompile(`(?i)token["\s:=]+[a-zA-Z0-9._-]{20,}`),
}

// Redactor masks credentials in log output.
type Redactor struct {
	mu       sync.RWMutex
	rules    []*regexp.Regexp
	secrets  []string
	replacer *strings.Replacer
}

// NewRedactor returns a redactor loaded with the credential rules.
func NewRedactor() *Redactor {
	r := &Redactor{rules: append([]*regexp.Regexp(nil), credentialRules...)}
	r.replacer = strings.NewReplacer()
	return r
}

// AddPattern adds a custom redaction pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.rules = append(r.rules, re)
	r.mu.Unlock()
	return nil
}

// AddSecret masks every occurrence of an exact value, such as the
// configured bot token. Values shorter than eight bytes are ignored.
func (r *Redactor) AddSecret(secret string) {
	if len(secret) < minSecretLen {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.secrets = append(r.secrets, secret)
	pairs := make([]string, 0, 2*len(r.secrets))
	for _, s := range r.secrets {
		pairs = append(pairs, s, Mask)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact returns s with configured secrets and credential patterns masked.
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s = r.replacer.Replace(s)
	for _, re := range r.rules {
		s = re.ReplaceAllString(s, Mask)
	}
	return s
}

// Wrap returns a writer that redacts each write before passing it to w.
// zerolog issues one write per event, so patterns never straddle writes.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		if _, err := io.WriteString(w, r.Redact(string(p))); err != nil {
			return 0, err
		}
		return len(p), nil
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
