package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/thumbsieve/internal/model"
	"golang.org/x/net/html"
)

// likeText matches engagement labels such as "1.2万", "3k" or "845"
var likeText = regexp.MustCompile(`(?i)[\d.]+[wkm万千]?`)

// likeClassHints are class substrings of elements that carry the like count
var likeClassHints = []string{"count", "like", "digg"}

// FromHTML extracts video thumbnails from a Douyin page snapshot.
// Every link to /video/ that wraps an <img> yields one candidate.
func FromHTML(htmlContent string, pageURL string) ([]model.CandidateItem, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	baseURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	var items []model.CandidateItem
	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if strings.Contains(href, "/video/") {
				videoURL := resolveURL(baseURL, href)
				thumb := ""
				if img := findElement(n, "img"); img != nil {
					thumb = imageURL(baseURL, img)
				}
				if videoURL != "" && thumb != "" {
					items = append(items, model.CandidateItem{
						ImageURL:  thumb,
						SourceRef: videoURL,
						Likes:     likesNear(n),
					})
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return Dedupe(items), nil
}

// imageURL prefers src and falls back to data-src when src is a lazy-load
// placeholder such as a data: URI
func imageURL(base *url.URL, img *html.Node) string {
	for _, key := range []string{"src", "data-src"} {
		if u := resolveURL(base, strings.TrimSpace(attr(img, key))); u != "" {
			return u
		}
	}
	return ""
}

// likesNear reads the like count from the link's list item or video card
func likesNear(link *html.Node) string {
	container := closest(link, func(n *html.Node) bool {
		if n.Data == "li" {
			return true
		}
		return n.Data == "div" && strings.Contains(attr(n, "class"), "video")
	})
	if container == nil {
		return "N/A"
	}

	var likes string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && (n.Data == "span" || n.Data == "div") && hasLikeClass(n) {
			if text := strings.TrimSpace(textContent(n)); text != "" && likeText.MatchString(text) {
				likes = text
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	if walk(container) {
		return likes
	}
	return "N/A"
}

func hasLikeClass(n *html.Node) bool {
	class := strings.ToLower(attr(n, "class"))
	for _, hint := range likeClassHints {
		if strings.Contains(class, hint) {
			return true
		}
	}
	return false
}

func closest(n *html.Node, match func(*html.Node) bool) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && match(p) {
			return p
		}
	}
	return nil
}

func findElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// resolveURL resolves href against base and keeps only http(s) results
func resolveURL(base *url.URL, href string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "data:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	return resolved.String()
}
