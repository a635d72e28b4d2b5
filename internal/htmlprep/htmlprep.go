// Package htmlprep detects HTML input and converts it to clean Markdown
// before chunking, the way the teacher's internal/tools/web.Fetcher handles
// HTML document intake: go-shiori/go-readability strips boilerplate, then
// JohannesKaufmann/html-to-markdown/v2 converts the remaining article HTML
// to Markdown. Plain text documents skip this step entirely.
package htmlprep

import (
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
)

// LooksLikeHTML detects HTML the same heuristic way the teacher's fetcher
// branches on content type, adapted to sniff raw text instead of an HTTP
// Content-Type header: an explicit <html>/<body> tag, or a majority of
// angle-bracket tokens.
func LooksLikeHTML(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<body") {
		return true
	}
	opens := strings.Count(text, "<")
	closes := strings.Count(text, ">")
	if opens == 0 {
		return false
	}
	// A rough density check: real prose rarely has this many angle brackets.
	return opens > 3 && closes > 3 && opens+closes > len(text)/20
}

// ToMarkdown runs readability extraction then HTML->Markdown conversion. If
// readability finds no extractable article, the whole document is
// converted instead, mirroring the teacher's fallback-to-full-HTML path.
func ToMarkdown(html, sourceURL string) (string, error) {
	base, _ := url.Parse(sourceURL)

	articleHTML := html
	var title string
	if art, err := readability.FromReader(strings.NewReader(html), base); err == nil && strings.TrimSpace(art.Content) != "" {
		articleHTML = art.Content
		title = strings.TrimSpace(art.Title)
	}

	md, err := htmltomarkdown.ConvertString(articleHTML)
	if err != nil {
		return "", err
	}
	md = strings.TrimSpace(md)
	if title != "" && !strings.HasPrefix(md, "# ") {
		md = "# " + title + "\n\n" + md
	}
	return md, nil
}
