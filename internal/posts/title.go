package posts

import (
	"strings"
	"unicode"
)

const (
	// UntitledPost is the label used when neither provider nor caption yield a title.
	UntitledPost = "Untitled Post"

	maxTitleRunes = 100
	ellipsis      = "..."
)

// DeriveTitle builds a short title from the first line or sentence of caption.
func DeriveTitle(caption string) string {
	text := strings.TrimSpace(caption)
	if text == "" {
		return ""
	}

	if idx := strings.IndexFunc(text, isTitleBreak); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}

	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}

	limit := maxTitleRunes - len(ellipsis)
	cut := runes[:limit]
	if !unicode.IsSpace(runes[limit]) {
		if sp := lastSpace(cut); sp > 0 {
			cut = cut[:sp]
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + ellipsis
}

func isTitleBreak(r rune) bool {
	switch r {
	case '\n', '\r', '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
