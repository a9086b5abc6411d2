package posts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
)

var sharedDataPattern = regexp.MustCompile(`window\._sharedData\s*=\s*`)

const socialMediaPostingType = "socialmediaposting"

// ExtractFromHTML finds embedded post data in a profile page. The legacy
// window._sharedData timeline is tried first, then ld+json SocialMediaPosting
// blocks. When neither yields records a PARSE_ERROR is returned alongside an
// empty slice; it describes the page, not a failed fetch.
func ExtractFromHTML(doc string) ([]domain.RawRecord, error) {
	if strings.TrimSpace(doc) == "" {
		return []domain.RawRecord{}, domain.ParseError("empty html document")
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return []domain.RawRecord{}, domain.ParseError(fmt.Sprintf("parse html: %v", err))
	}

	records, sharedErr := extractSharedData(page)
	if len(records) == 0 {
		records = extractLinkedData(page)
	}
	if len(records) == 0 {
		msg := "no embedded post data found"
		if sharedErr != nil {
			msg = fmt.Sprintf("%s (shared data: %v)", msg, sharedErr)
		}
		return []domain.RawRecord{}, domain.ParseError(msg)
	}

	labelPositions(records)
	return records, nil
}

// extractSharedData walks entry_data.ProfilePage[].graphql.user.edge_owner_to_timeline_media.edges[].node.
func extractSharedData(page *goquery.Document) ([]domain.RawRecord, error) {
	var (
		records []domain.RawRecord
		lastErr error
	)
	page.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		loc := sharedDataPattern.FindStringIndex(text)
		if loc == nil {
			return true
		}

		var state map[string]any
		if err := json.NewDecoder(strings.NewReader(text[loc[1]:])).Decode(&state); err != nil {
			lastErr = fmt.Errorf("decode _sharedData: %w", err)
			return true
		}
		records = append(records, timelineNodes(domain.RawRecord(state))...)
		return len(records) == 0
	})
	return records, lastErr
}

func timelineNodes(state domain.RawRecord) []domain.RawRecord {
	entry, ok := state.Record("entry_data")
	if !ok {
		return nil
	}
	pages, ok := entry["ProfilePage"].([]any)
	if !ok {
		return nil
	}

	var out []domain.RawRecord
	for _, p := range pages {
		media, ok := digRecord(p, "graphql", "user", "edge_owner_to_timeline_media")
		if !ok {
			continue
		}
		edges, ok := media["edges"].([]any)
		if !ok {
			continue
		}
		for _, e := range edges {
			if node, ok := digRecord(e, "node"); ok {
				out = append(out, node)
			}
		}
	}
	return out
}

func digRecord(v any, path ...string) (domain.RawRecord, bool) {
	cur, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	rec := domain.RawRecord(cur)
	for _, key := range path {
		next, ok := rec.Record(key)
		if !ok {
			return nil, false
		}
		rec = next
	}
	return rec, true
}

// extractLinkedData collects SocialMediaPosting objects from ld+json blocks.
// Malformed blocks are skipped.
func extractLinkedData(page *goquery.Document) []domain.RawRecord {
	var out []domain.RawRecord
	page.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			return
		}
		out = append(out, collectPostings(payload)...)
	})
	return out
}

func collectPostings(v any) []domain.RawRecord {
	switch val := v.(type) {
	case []any:
		var out []domain.RawRecord
		for _, item := range val {
			out = append(out, collectPostings(item)...)
		}
		return out
	case map[string]any:
		rec := domain.RawRecord(val)
		if graph, ok := val["@graph"]; ok {
			return collectPostings(graph)
		}
		if isPostingType(rec) {
			return []domain.RawRecord{rec}
		}
	}
	return nil
}

func isPostingType(rec domain.RawRecord) bool {
	if typ := rec.String("@type"); typ != "" {
		return strings.EqualFold(typ, socialMediaPostingType)
	}
	types, _ := rec.Strings("@type")
	for _, typ := range types {
		if strings.EqualFold(typ, socialMediaPostingType) {
			return true
		}
	}
	return false
}

// labelPositions names records with no derivable url or id "Post N", 1-based
// within this extraction pass.
func labelPositions(records []domain.RawRecord) {
	for i, rec := range records {
		if rec.String(urlKeys...) != "" || rec.String(idKeys...) != "" || rec.String(shortcodeKeys...) != "" {
			continue
		}
		if rec.String(titleKeys...) == "" {
			rec["title"] = fmt.Sprintf("Post %d", i+1)
		}
	}
}
