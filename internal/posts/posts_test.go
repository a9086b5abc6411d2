package posts

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
)

var fixedNow = func() time.Time { return time.UnixMilli(1_700_000_000_123) }

func TestExtractHashtagsDedupesCaseInsensitively(t *testing.T) {
	got := ExtractHashtags("Launch day! #NASA #Space #nasa #space_x #Ωmega #ωMEGA #ας #ασ")
	want := []string{"nasa", "space", "space_x", "ωmega", "ας"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("ExtractHashtags = %v, want %v", got, want)
	}
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			if strings.EqualFold(got[i], got[j]) {
				t.Fatalf("tags %q and %q are equal ignoring case", got[i], got[j])
			}
		}
	}
}

func TestExtractHashtagsEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "no tags here", "# lonely"} {
		got := ExtractHashtags(in)
		if got == nil || len(got) != 0 {
			t.Fatalf("ExtractHashtags(%q) = %#v, want empty slice", in, got)
		}
	}
}

func TestNormalizeHashtagsStripsMarkers(t *testing.T) {
	got := NormalizeHashtags([]string{"#Moon", "moon", " ", "Mars"})
	if strings.Join(got, ",") != "moon,mars" {
		t.Fatalf("NormalizeHashtags = %v", got)
	}
}

func TestNormalizeHashtagsDropsNonWordTags(t *testing.T) {
	got := NormalizeHashtags([]string{"space x", "nasa!", "#Café", "mission_42", "ok-go", "#"})
	if strings.Join(got, ",") != "café,mission_42" {
		t.Fatalf("NormalizeHashtags = %v", got)
	}
}

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"first sentence", "Liftoff of Artemis. More details soon", "Liftoff of Artemis"},
		{"first line", "Good morning\nfrom orbit", "Good morning"},
		{"question", "Have you seen this? Look up", "Have you seen this"},
		{"trimmed", "   spaced out   ", "spaced out"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTitle(tc.in); got != tc.want {
				t.Fatalf("DeriveTitle(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDeriveTitleTruncatesAtWordBoundary(t *testing.T) {
	caption := strings.Repeat("astronaut ", 20)
	got := DeriveTitle(caption)
	if n := utf8.RuneCountInString(got); n > maxTitleRunes {
		t.Fatalf("title has %d runes, want <= %d", n, maxTitleRunes)
	}
	if !strings.HasSuffix(got, ellipsis) {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
	body := strings.TrimSuffix(got, ellipsis)
	for _, word := range strings.Fields(body) {
		if word != "astronaut" {
			t.Fatalf("title split a word: %q", got)
		}
	}
}

func TestDeriveTitleSingleLongWord(t *testing.T) {
	got := DeriveTitle(strings.Repeat("x", 150))
	if utf8.RuneCountInString(got) != maxTitleRunes {
		t.Fatalf("expected hard cut to %d runes, got %d", maxTitleRunes, utf8.RuneCountInString(got))
	}
}

func TestIsPost(t *testing.T) {
	cases := []struct {
		rec  domain.RawRecord
		want bool
	}{
		{domain.RawRecord{"id": "1", "type": "Image"}, true},
		{domain.RawRecord{"id": "1", "type": "Sidecar"}, true},
		{domain.RawRecord{"id": "1", "content_type": "Reel"}, true},
		{domain.RawRecord{"id": "1", "__typename": "GraphVideo"}, true},
		{domain.RawRecord{"id": "1"}, true},
		{domain.RawRecord{"id": "1", "type": "Profile"}, false},
		{domain.RawRecord{"error": "not_found", "errorDescription": "page missing"}, false},
		{domain.RawRecord{}, false},
	}
	for i, tc := range cases {
		if got := IsPost(tc.rec); got != tc.want {
			t.Fatalf("case %d: IsPost(%v) = %v, want %v", i, tc.rec, got, tc.want)
		}
	}
}

func TestNormalizePrefersProviderFields(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	post, ok := n.Normalize(domain.RawRecord{
		"id":        "3127",
		"type":      "Image",
		"shortCode": "Cx1",
		"caption":   "Moon walk. #Moon #Apollo",
		"title":     "Provider title",
		"hashtags":  []any{"#Luna"},
		"timestamp": "2024-01-02T03:04:05Z",
	})
	if !ok {
		t.Fatalf("expected post")
	}
	if post.Title != "Provider title" {
		t.Fatalf("title = %q", post.Title)
	}
	if strings.Join(post.Hashtags, ",") != "luna" {
		t.Fatalf("hashtags = %v", post.Hashtags)
	}
	if post.URL != "https://www.instagram.com/p/Cx1/" {
		t.Fatalf("url = %q", post.URL)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()
	if post.Timestamp != want {
		t.Fatalf("timestamp = %d, want %d", post.Timestamp, want)
	}
}

func TestNormalizeFallsBackToDerivedFields(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	post, ok := n.Normalize(domain.RawRecord{
		"post_id":     "bd-1",
		"description": "Sunrise over the ISS\n#Earth #earth",
		"hashtags":    "not a list",
		"title":       "",
	})
	if !ok {
		t.Fatalf("expected post")
	}
	if post.ID != "bd-1" || post.Title != "Sunrise over the ISS" {
		t.Fatalf("unexpected post %+v", post)
	}
	if strings.Join(post.Hashtags, ",") != "earth" {
		t.Fatalf("hashtags = %v", post.Hashtags)
	}
	if post.Timestamp != fixedNow().UnixMilli() {
		t.Fatalf("timestamp should default to now, got %d", post.Timestamp)
	}
}

func TestNormalizeUntitledAndSecondsTimestamp(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	post, ok := n.Normalize(domain.RawRecord{"taken_at_timestamp": float64(1_600_000_000)})
	if !ok {
		t.Fatalf("expected post")
	}
	if post.Title != UntitledPost {
		t.Fatalf("title = %q", post.Title)
	}
	if post.Timestamp != 1_600_000_000_000 {
		t.Fatalf("timestamp = %d", post.Timestamp)
	}
	if post.Hashtags == nil {
		t.Fatalf("hashtags must be non-nil")
	}
}

func TestNormalizeDropsNonPosts(t *testing.T) {
	if _, ok := (Normalizer{}).Normalize(domain.RawRecord{"id": "x", "type": "Story"}); ok {
		t.Fatalf("story must be dropped")
	}
}

func TestDedupeFirstWinsAndStopsAtLimit(t *testing.T) {
	records := []domain.RawRecord{
		{"id": "1", "caption": "first"},
		{"id": "1", "caption": "duplicate"},
		{"type": "Profile", "id": "p"},
		{"shortCode": "abc", "caption": "by shortcode"},
		{"shortcode": "abc", "caption": "same shortcode"},
		{"timestamp": float64(1_700_000_000), "caption": "by time"},
		{"caption": "Only a caption"},
		{"id": "99", "caption": "beyond the cap"},
	}
	got := Dedupe(records, 4, Normalizer{Now: fixedNow})
	if len(got) != 4 {
		t.Fatalf("expected 4 posts, got %d", len(got))
	}
	wantCaptions := []string{"first", "by shortcode", "by time", "Only a caption"}
	for i, p := range got {
		if p.Caption != wantCaptions[i] {
			t.Fatalf("post %d caption = %q, want %q", i, p.Caption, wantCaptions[i])
		}
	}
}

func TestDedupeUniqueKeysProperty(t *testing.T) {
	n := Normalizer{Now: fixedNow}
	var records []domain.RawRecord
	for i := 0; i < 60; i++ {
		records = append(records, domain.RawRecord{"id": fmt.Sprintf("%d", i%7), "caption": fmt.Sprintf("c%d", i)})
	}
	for limit := 0; limit <= 10; limit++ {
		got := Dedupe(records, limit, n)
		if len(got) > limit {
			t.Fatalf("limit %d: got %d posts", limit, len(got))
		}
		seen := map[string]bool{}
		for _, p := range got {
			if seen[p.ID] {
				t.Fatalf("limit %d: duplicate id %s", limit, p.ID)
			}
			seen[p.ID] = true
		}
	}
}

func TestDedupePosts(t *testing.T) {
	in := []domain.Post{{ID: "a"}, {ID: "a", Title: "dup"}, {URL: "u"}, {URL: "u"}, {Title: "t"}}
	got := DedupePosts(in, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(got))
	}
}

const sharedDataPage = `<html><head><script type="text/javascript">window._sharedData = {"entry_data":{"ProfilePage":[{"graphql":{"user":{"edge_owner_to_timeline_media":{"edges":[
{"node":{"id":"11","shortcode":"AA","__typename":"GraphImage","taken_at_timestamp":1700000000,"edge_media_to_caption":{"edges":[{"node":{"text":"Hello #World"}}]}}},
{"node":{"id":"12","shortcode":"BB","__typename":"GraphVideo","edge_media_to_caption":{"edges":[]}}}
]}}}}]}};</script></head><body></body></html>`

func TestExtractFromHTMLSharedData(t *testing.T) {
	records, err := ExtractFromHTML(sharedDataPage)
	if err != nil {
		t.Fatalf("ExtractFromHTML: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	posts := Dedupe(records, 10, Normalizer{Now: fixedNow})
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].Caption != "Hello #World" || posts[0].Hashtags[0] != "world" {
		t.Fatalf("unexpected first post %+v", posts[0])
	}
	if posts[1].URL != "https://www.instagram.com/p/BB/" {
		t.Fatalf("unexpected url %q", posts[1].URL)
	}
}

func TestExtractFromHTMLLinkedDataFallback(t *testing.T) {
	page := `<html><head>
<script>window._sharedData = {"entry_data": {broken</script>
<script type="application/ld+json">{"@context":"https://schema.org","@graph":[
 {"@type":"SocialMediaPosting","articleBody":"First post #one","datePublished":"2024-03-01T10:00:00Z"},
 {"@type":"Person","name":"someone"},
 {"@type":["SocialMediaPosting"],"url":"https://www.instagram.com/p/ZZ/","headline":"Second"}
]}</script>
<script type="application/ld+json">{not json</script>
</head></html>`

	records, err := ExtractFromHTML(page)
	if err != nil {
		t.Fatalf("ExtractFromHTML: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["title"] != "Post 1" {
		t.Fatalf("expected positional label, got %v", records[0]["title"])
	}
	if _, ok := records[1]["title"]; ok {
		t.Fatalf("record with url must not get a positional label")
	}
}

func TestExtractFromHTMLNoStructure(t *testing.T) {
	records, err := ExtractFromHTML("<html><body><p>login required</p></body></html>")
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if domain.KindOf(err) != domain.KindParseError {
		t.Fatalf("expected PARSE_ERROR, got %v", err)
	}
}
