package posts

import (
	"strconv"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
)

// Dedupe normalizes records in order and keeps the first post per DedupKey.
// It stops reading input once limit posts were accepted; records failing the
// post type check are skipped without counting.
func Dedupe(records []domain.RawRecord, limit int, n Normalizer) []domain.Post {
	if limit <= 0 {
		return []domain.Post{}
	}

	out := make([]domain.Post, 0, min(limit, len(records)))
	seen := make(map[string]struct{}, cap(out))
	for _, rec := range records {
		if len(out) >= limit {
			break
		}
		post, ok := n.Normalize(rec)
		if !ok {
			continue
		}
		key := DedupKey(rec, post)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, post)
	}
	return out
}

// DedupePosts applies the same first-wins rule to already normalized posts,
// keyed by id, else url, else timestamp, else title.
func DedupePosts(posts []domain.Post, limit int) []domain.Post {
	if limit <= 0 {
		return []domain.Post{}
	}

	out := make([]domain.Post, 0, min(limit, len(posts)))
	seen := make(map[string]struct{}, cap(out))
	for _, p := range posts {
		if len(out) >= limit {
			break
		}
		key := PostKey(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// PostKey is the identity of an already normalized post.
func PostKey(p domain.Post) string {
	switch {
	case p.ID != "":
		return "id:" + p.ID
	case p.URL != "":
		return "url:" + p.URL
	case p.Timestamp != 0:
		return "ts:" + strconv.FormatInt(p.Timestamp, 10)
	default:
		return "title:" + p.Title
	}
}
