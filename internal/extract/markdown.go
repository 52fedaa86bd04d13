package extract

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var (
	blankRunRe = regexp.MustCompile(`\n{3,}`)
	htmlHintRe = regexp.MustCompile(`(?i)<(html|body|article|main|div|p|h[1-6]|ul|ol|table)[\s>]`)
)

// noise elements dropped before conversion
var noiseTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true, "header": true,
	"footer": true, "aside": true, "form": true, "iframe": true, "button": true,
}

// Converter turns extractor HTML into markdown
type Converter struct {
	converter *md.Converter
}

// NewConverter creates a converter with GitHub-flavored output
func NewConverter() *Converter {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Converter{converter: converter}
}

// LooksLikeHTML reports whether content is markup rather than plain text
func LooksLikeHTML(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "<") && htmlHintRe.MatchString(trimmed)
}

// Convert renders the main content of an HTML page as markdown. The page
// title becomes a level-one heading when the body does not start with one.
func (c *Converter) Convert(content string) (string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", err
	}

	title := findTitle(doc)
	root := findFirst(doc, "main")
	if root == nil {
		root = findFirst(doc, "article")
	}
	if root == nil {
		root = findFirst(doc, "body")
	}
	if root == nil {
		root = doc
	}
	stripNoise(root)

	var sb strings.Builder
	if err := html.Render(&sb, root); err != nil {
		return "", err
	}
	markdown, err := c.converter.ConvertString(sb.String())
	if err != nil {
		return "", err
	}

	markdown = tidy(markdown)
	if title != "" && !strings.HasPrefix(markdown, "# ") {
		markdown = "# " + title + "\n\n" + markdown
	}
	return markdown, nil
}

func findTitle(n *html.Node) string {
	t := findFirst(n, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return strings.Join(strings.Fields(t.FirstChild.Data), " ")
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func stripNoise(n *html.Node) {
	var drop []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && noiseTags[c.Data] {
			drop = append(drop, c)
			continue
		}
		stripNoise(c)
	}
	for _, c := range drop {
		n.RemoveChild(c)
	}
}

func tidy(markdown string) string {
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	markdown = strings.Join(lines, "\n")
	markdown = blankRunRe.ReplaceAllString(markdown, "\n\n")
	return strings.TrimSpace(markdown)
}
