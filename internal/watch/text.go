package watch

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Column limits of entities.WatchRule, counted in runes.
const (
	maxTargetIDLen   = 100
	maxTargetNameLen = 255
	maxTargetInfoLen = 1000
	maxRuleTextLen   = 2000
	maxReasonLen     = 500
	maxCreatedByLen  = 100
)

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// normalizeText trims surrounding space and folds CRLF and lone CR line
// breaks to LF so stored text survives CSV export and re-parse unchanged.
func normalizeText(s string) string {
	return strings.TrimSpace(newlineReplacer.Replace(s))
}

func checkLength(field, value string, limit int) error {
	if n := utf8.RuneCountInString(value); n > limit {
		return fmt.Errorf("%w: %s is %d characters, limit is %d", ErrValidation, field, n, limit)
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
