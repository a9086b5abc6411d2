package posts

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
)

// Field aliases used by the supported providers, in lookup priority order.
var (
	idKeys        = []string{"id", "post_id", "pk", "identifier"}
	shortcodeKeys = []string{"shortCode", "shortcode", "code"}
	captionKeys   = []string{"caption", "description", "text", "articleBody"}
	titleKeys     = []string{"title", "headline"}
	urlKeys       = []string{"url", "post_url", "permalink"}
	timestampKeys = []string{"timestamp", "taken_at_timestamp", "taken_at", "date_posted", "datePublished", "uploadDate"}
	typeKeys      = []string{"type", "content_type", "__typename", "@type"}
)

var postTypes = map[string]struct{}{
	"image":              {},
	"video":              {},
	"sidecar":            {},
	"carousel":           {},
	"post":               {},
	"reel":               {},
	"graphimage":         {},
	"graphvideo":         {},
	"graphsidecar":       {},
	"socialmediaposting": {},
}

// millisThreshold separates epoch seconds from epoch millis.
const millisThreshold = 1e12

// IsPost reports whether rec represents a post rather than an error item or
// another content type (profile, story, comment...).
func IsPost(rec domain.RawRecord) bool {
	if len(rec) == 0 {
		return false
	}
	if rec.Has("error") || rec.Has("errorDescription") {
		return false
	}
	for _, key := range typeKeys {
		if !rec.Has(key) {
			continue
		}
		typ := rec.String(key)
		if typ == "" {
			if types, ok := rec.Strings(key); ok && len(types) > 0 {
				typ = types[0]
			}
		}
		_, ok := postTypes[strings.ToLower(strings.ReplaceAll(typ, "_", ""))]
		return ok
	}
	return true
}

// Normalizer maps raw provider records onto domain.Post.
type Normalizer struct {
	// Now stamps posts whose provider omitted a timestamp.
	Now func() time.Time
}

// Normalize returns the post for rec, or false when rec fails the post type check.
func (n Normalizer) Normalize(rec domain.RawRecord) (domain.Post, bool) {
	if !IsPost(rec) {
		return domain.Post{}, false
	}

	caption := rec.String(captionKeys...)
	if caption == "" {
		caption = edgeCaption(rec)
	}

	title := rec.String(titleKeys...)
	if title == "" {
		title = DeriveTitle(caption)
	}
	if title == "" {
		title = UntitledPost
	}

	var hashtags []string
	if tags, ok := rec.Strings("hashtags"); ok {
		hashtags = NormalizeHashtags(tags)
	} else {
		hashtags = ExtractHashtags(caption)
	}

	url := rec.String(urlKeys...)
	if url == "" {
		if sc := rec.String(shortcodeKeys...); sc != "" {
			url = "https://www.instagram.com/p/" + sc + "/"
		}
	}

	ts, ok := recordTimestamp(rec)
	if !ok {
		ts = n.now().UnixMilli()
	}

	return domain.Post{
		ID:        rec.String(idKeys...),
		Title:     title,
		Caption:   caption,
		Hashtags:  hashtags,
		URL:       url,
		Timestamp: ts,
	}, true
}

func (n Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// recordTimestamp reads the provider timestamp as epoch millis.
func recordTimestamp(rec domain.RawRecord) (int64, bool) {
	for _, key := range timestampKeys {
		if !rec.Has(key) {
			continue
		}
		if num, ok := rec.Number(key); ok && num > 0 {
			if num < millisThreshold {
				return int64(num * 1000), true
			}
			return int64(num), true
		}
		if s, ok := rec[key].(string); ok {
			if t, err := dateparse.ParseAny(strings.TrimSpace(s)); err == nil {
				return t.UnixMilli(), true
			}
		}
	}
	return 0, false
}

// edgeCaption reads the GraphQL caption form {"edge_media_to_caption":{"edges":[{"node":{"text":...}}]}}.
func edgeCaption(rec domain.RawRecord) string {
	edge, ok := rec.Record("edge_media_to_caption")
	if !ok {
		return ""
	}
	edges, ok := edge["edges"].([]any)
	if !ok {
		return ""
	}
	for _, e := range edges {
		item, ok := e.(map[string]any)
		if !ok {
			continue
		}
		node, ok := domain.RawRecord(item).Record("node")
		if !ok {
			continue
		}
		if text := node.String("text"); text != "" {
			return text
		}
	}
	return ""
}

// DedupKey derives the identity of a normalized record: id, else shortcode,
// else the provider timestamp, else the derived title.
func DedupKey(rec domain.RawRecord, post domain.Post) string {
	if post.ID != "" {
		return "id:" + post.ID
	}
	if sc := rec.String(shortcodeKeys...); sc != "" {
		return "shortcode:" + sc
	}
	if ts, ok := recordTimestamp(rec); ok {
		return "ts:" + strconv.FormatInt(ts, 10)
	}
	return "title:" + post.Title
}
