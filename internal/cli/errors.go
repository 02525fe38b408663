package cli

import (
	"unicode"
	"unicode/utf8"
)

// ErrorMessage renders err for the terminal with its first letter upper-cased.
func ErrorMessage(err error) string {
	msg := err.Error()
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
