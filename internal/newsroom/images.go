// internal/newsroom/images.go
package newsroom

import (
	"regexp"

	"github.com/user/wonderland/internal/types"
)

// MaxImages caps the images attached to one writer request.
const MaxImages = 4

var (
	imageExtension = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|svg|bmp|avif)(\?[^)]*)?$`)
	markdownImage  = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	bareImageURL   = regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(jpg|jpeg|png|gif|webp|svg|bmp|avif)(\?[^\s"'<>]*)?`)
)

// ExtractImageURLs finds markdown images and bare image URLs in text.
func ExtractImageURLs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, m := range markdownImage.FindAllStringSubmatch(text, -1) {
		if imageExtension.MatchString(m[1]) {
			add(m[1])
		}
	}
	for _, u := range bareImageURL.FindAllString(text, -1) {
		add(u)
	}
	if len(out) > MaxImages {
		out = out[:MaxImages]
	}
	return out
}

// StimulusImages collects up to MaxImages unique image URLs from the
// stimulus and the rendered prompt.
func StimulusImages(ev *types.StimulusEvent, prompt string) []string {
	var urls []string
	p := ev.Payload
	if p.SourceURL != "" && imageExtension.MatchString(p.SourceURL) {
		urls = append(urls, p.SourceURL)
	}
	urls = append(urls, ExtractImageURLs(p.Body)...)
	urls = append(urls, ExtractImageURLs(p.Content)...)
	urls = append(urls, ExtractImageURLs(prompt)...)

	var out []string
	seen := make(map[string]bool)
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if len(out) == MaxImages {
			break
		}
	}
	return out
}
