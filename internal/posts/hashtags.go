package posts

import (
	"regexp"
	"strings"
	"unicode"
)

// hashtagPattern matches word characters including non-ASCII letters, combining marks and digits.
var hashtagPattern = regexp.MustCompile(`#([\p{L}\p{M}\p{N}_]+)`)

// tagPattern is hashtagPattern's character class anchored over a whole tag.
var tagPattern = regexp.MustCompile(`^[\p{L}\p{M}\p{N}_]+$`)

// ExtractHashtags returns the unique lower-cased hashtags of text in first-seen order.
func ExtractHashtags(text string) []string {
	out := []string{}
	if strings.TrimSpace(text) == "" {
		return out
	}

	seen := make(map[string]struct{})
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		out = appendTag(out, seen, m[1])
	}
	return out
}

// NormalizeHashtags cleans a provider supplied tag list the same way ExtractHashtags
// cleans derived tags. Tags holding anything but word characters are dropped.
func NormalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimLeft(strings.TrimSpace(tag), "#")
		if !tagPattern.MatchString(tag) {
			continue
		}
		out = appendTag(out, seen, tag)
	}
	return out
}

func appendTag(out []string, seen map[string]struct{}, tag string) []string {
	lower := strings.ToLower(tag)
	key := foldKey(lower)
	if _, ok := seen[key]; ok {
		return out
	}
	seen[key] = struct{}{}
	return append(out, lower)
}

// foldKey maps every rune to the smallest member of its simple case-folding
// orbit, so strings equal under strings.EqualFold share a key (σ/ς/Σ included).
func foldKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		min := r
		for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
			if f < min {
				min = f
			}
		}
		b.WriteRune(min)
	}
	return b.String()
}
