package utils

import (
	"bytes"
	"html"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	mdhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	mdParser = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			mdhtml.WithHardWraps(),
			mdhtml.WithXHTML(),
		),
	)
	policy = bluemonday.UGCPolicy()

	// 想法描述来自富文本编辑器, 只保留编辑器能产生的标签和样式
	descriptionPolicy = bluemonday.NewPolicy()
)

func init() {
	// Force links to open in new tab
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.RequireNoReferrerOnLinks(true)

	descriptionPolicy.AllowElements("b", "i", "u", "em", "strong", "ul", "ol", "li", "br", "p", "span", "font")
	descriptionPolicy.AllowStandardURLs()
	descriptionPolicy.AllowAttrs("href").OnElements("a")
	descriptionPolicy.AllowAttrs("color").OnElements("font")
	descriptionPolicy.AllowStyles("color").MatchingHandler(func(string) bool { return true }).Globally()
	descriptionPolicy.AllowStyles("font-size").Matching(regexp.MustCompile(`^[0-9.]+(px|em|rem|%|pt)$`)).Globally()
	descriptionPolicy.AllowStyles("text-decoration").MatchingEnum("underline", "line-through", "none").Globally()
	descriptionPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	descriptionPolicy.RequireNoReferrerOnLinks(true)
}

// RenderMarkdown converts comment markdown into sanitized HTML.
func RenderMarkdown(source string) string {
	var buf bytes.Buffer
	if err := mdParser.Convert([]byte(source), &buf); err != nil {
		return html.EscapeString(source) // Fallback
	}
	return policy.Sanitize(buf.String())
}

// SanitizeDescription strips everything the idea editor cannot produce.
func SanitizeDescription(raw string) string {
	return descriptionPolicy.Sanitize(raw)
}
