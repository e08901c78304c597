package extractfields

import (
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
	"github.com/rohmanhakim/smartcrawl/internal/fieldkw"
)

// markdownSyntaxHint flags description text worth running through the
// AST stripper; plain scraped text almost never matches this, so the
// common case skips the parse entirely.
var markdownSyntaxHint = regexp.MustCompile(`\*\*[^*]+\*\*|__[^_]+__|\[[^\]]+\]\([^)]+\)|` + "`[^`]+`")

// stripMarkdownSyntax removes Markdown emphasis/link/code syntax from
// description text pulled out of rich-text widgets, leaving the plain
// reading text behind. Text with no Markdown-like syntax passes
// through untouched.
func stripMarkdownSyntax(text string) string {
	if !markdownSyntaxHint.MatchString(text) {
		return text
	}

	p := parser.New()
	doc := markdown.Parse([]byte(text), p)

	var sb strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Text:
			sb.Write(n.Literal)
			sb.WriteByte(' ')
		case *ast.Code:
			sb.Write(n.Literal)
			sb.WriteByte(' ')
		}
		return ast.GoToNext
	})

	stripped := fieldkw.NormalizeWhitespace(sb.String())
	if stripped == "" {
		return text
	}
	return stripped
}
