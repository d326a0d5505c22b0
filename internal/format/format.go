// Package format turns one feed item into a safe, readable HTML
// notification body. Everything here is pure: no side effects, no network.
package format

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"mvdan.cc/xurls/v2"

	"feedrelay/internal/feed"
)

// ZWSP is the zero-width space inserted to defeat Telegram's automatic
// link previews for URLs quoted inside body text.
const ZWSP = "\u200b"

const (
	defaultTitle  = "New post"
	maxSummaryLen = 300
	timeLayout    = "Jan 02 2006 15:04"
	metaSeparator = " • " // bullet
)

var (
	tagRe = regexp.MustCompile(`<[^>]*>`)

	// Scheme URLs are located with xurls; bare domain-like substrings
	// (TLD label of two or more letters) with a regexp of our own.
	schemeURLRe = func() *regexp.Regexp {
		re, err := xurls.StrictMatchingScheme(`https?://`)
		if err != nil {
			panic(err)
		}
		return re
	}()
	domainRe = regexp.MustCompile(`(?i)\b(?:[a-z0-9-]+\.)+[a-z]{2,}(?:/[^\s]*)?`)
)

// Esc escapes text for inline HTML.
func Esc(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// EscAttr escapes text for use inside a double-quoted HTML attribute
// value.
func EscAttr(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// StripTags removes embedded markup tags, replacing each with a space.
func StripTags(s string) string {
	return tagRe.ReplaceAllString(s, " ")
}

// BreakURL inserts ZWSP after the scheme delimiter and after every dot so
// the URL is still readable but no longer autolinked.
func BreakURL(u string) string {
	u = strings.Replace(u, "://", ":"+ZWSP+"//", 1)
	return strings.ReplaceAll(u, ".", "."+ZWSP)
}

// BreakAutoLinks defeats autolinking of URLs and domain-like substrings
// inside body text.
func BreakAutoLinks(text string) string {
	out := schemeURLRe.ReplaceAllStringFunc(text, BreakURL)
	return domainRe.ReplaceAllStringFunc(out, func(m string) string {
		if strings.Contains(m, ZWSP) {
			return m
		}
		return strings.ReplaceAll(m, ".", "."+ZWSP)
	})
}

// Formatter renders notifications with timestamps in a fixed timezone.
type Formatter struct {
	loc *time.Location
}

// New creates a Formatter rendering timestamps in the given IANA timezone.
func New(timezone string) (*Formatter, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Formatter{loc: loc}, nil
}

// Item renders one feed item as a Telegram HTML message body.
//
// Line order: clickable title (plain bold when the item has no link),
// truncated summary, an italic meta line joining feed title, item domain
// and timestamp, and a trailing italic source-feed line. Empty parts are
// omitted.
func (f *Formatter) Item(item feed.Item, feedTitle, feedURL string) string {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = defaultTitle
	}
	title = Esc(title)
	link := strings.TrimSpace(item.Link)

	summary := strings.TrimSpace(StripTags(item.Summary))
	summary = truncate(Esc(BreakAutoLinks(summary)), maxSummaryLen)

	var lines []string

	if link != "" {
		lines = append(lines, fmt.Sprintf(`<a href="%s"><b>%s</b></a>`, EscAttr(link), title))
	} else {
		lines = append(lines, "<b>"+title+"</b>")
	}

	if summary != "" {
		lines = append(lines, summary)
	}

	var meta []string
	if feedTitle != "" {
		meta = append(meta, Esc(feedTitle))
	}
	if domain := linkDomain(link); domain != "" {
		meta = append(meta, Esc(BreakAutoLinks(domain)))
	}
	if when := f.timestamp(item.PublishedAt); when != "" {
		meta = append(meta, Esc(when))
	}
	if len(meta) > 0 {
		lines = append(lines, "<i>"+strings.Join(meta, metaSeparator)+"</i>")
	}

	if feedURL != "" {
		lines = append(lines, "<i>Feed: "+Esc(BreakAutoLinks(feedURL))+"</i>")
	}

	return strings.Join(lines, "\n")
}

func (f *Formatter) timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(f.loc).Format(timeLayout)
}

func linkDomain(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
