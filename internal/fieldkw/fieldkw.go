// Package fieldkw holds the keyword sets, regexes, and small DOM
// predicates shared by internal/detector (C7) and internal/extractfields
// (C8), so both packages score/extract title, price, image, link, and
// description candidates against the exact same heuristics (spec.md §4.6-4.7).
package fieldkw

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// UnstableClassRegex matches a class token containing a run of >=4
// digits or an 8-hex-char substring — both are treated as unstable
// and excluded from selector generation, per spec.md §4.6.1.
var UnstableClassRegex = regexp.MustCompile(`[0-9]{4,}|[0-9a-fA-F]{8}`)

// TitleKeywordRegex matches class/id tokens suggesting a title node.
var TitleKeywordRegex = regexp.MustCompile(`(?i)title|name|heading|product-name|item-name`)

// PriceKeywordRegex matches class/id tokens suggesting a price node.
var PriceKeywordRegex = regexp.MustCompile(`(?i)price|cost|amount|gia|valor|precio`)

// DescriptionKeywordRegex matches class/id tokens suggesting a
// description node.
var DescriptionKeywordRegex = regexp.MustCompile(`(?i)desc|description|summary|excerpt|content|text|detail`)

// CurrencyRegex recognises a price-shaped token: a leading currency
// symbol followed by a decimal number (optional K/M/B suffix), or a
// decimal number followed by a currency word, per spec.md §4.7.1.
var CurrencyRegex = regexp.MustCompile(
	`(?i)(?:[$€£₫¥₹元원฿₱]|Rp|RM|৳)` + `\s?[0-9][0-9.,]*\s?[KMB]?` +
		`|[0-9][0-9.,]*\s?(usd|eur|gbp|vnd|đ|₫|yuan|won|baht|peso|rupiah|ringgit|taka|dollar|euro|pound)`,
)

// currencyLeading and currencyTrailing are CurrencyRegex's two
// branches as separate matchers ("<symbol><number>" and
// "<number><currency word>"); LooksLikeCurrency uses them for a yes/no.
var currencyLeading = regexp.MustCompile(`(?i)(\$|€|£|₫|¥|₹|元|원|฿|₱|Rp|RM|৳)\s?[0-9][0-9.,]*\s?[KMB]?`)
var currencyTrailing = regexp.MustCompile(`(?i)[0-9][0-9.,]*\s?(usd|eur|gbp|vnd|đ|₫|yuan|won|baht|peso|rupiah|ringgit|taka|dollar|euro|pound)\b`)

// LooksLikeCurrency reports whether text contains a currency-shaped
// substring per spec.md §4.7.1's regex description.
func LooksLikeCurrency(text string) bool {
	return currencyLeading.MatchString(text) || currencyTrailing.MatchString(text)
}

// PaginationKeywords is the next-button/page-link keyword set tried
// against an anchor's visible text + class + id + rel, per spec.md §4.6.4.
var PaginationKeywords = []string{
	"next", "tiếp", "sau", "→", "›", "»", "page", "trang", "pag",
	"pagination", "load more", "xem thêm", "see more",
}

// LoadMoreKeywords is the load-more-specific keyword set, per spec.md §4.6.4.3.
var LoadMoreKeywords = []string{"load more", "xem thêm", "see more", "load-more"}

// InfiniteScrollKeywords is the heuristic keyword set for spec.md §4.6.5.
var InfiniteScrollKeywords = regexp.MustCompile(`(?i)infinite|scroll|lazy|load-more|auto-load|endless|continuous`)

// InfiniteScrollAPIPattern matches the raw-HTML /api/…load or
// /ajax/…load substrings from spec.md §4.6.5.
var InfiniteScrollAPIPattern = regexp.MustCompile(`(?i)/(api|ajax)/[^"'\s]*load`)

// ClassTokens splits a class attribute value into its space-separated
// tokens.
func ClassTokens(classAttr string) []string {
	return strings.Fields(classAttr)
}

// SortedClasses returns every class token (stable or not), sorted,
// for use in the structural signature.
func SortedClasses(classAttr string) []string {
	tokens := ClassTokens(classAttr)
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return sorted
}

// StableClasses returns class tokens with unstable tokens (per
// UnstableClassRegex) removed, for use in selector generation.
func StableClasses(classAttr string) []string {
	tokens := ClassTokens(classAttr)
	stable := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !UnstableClassRegex.MatchString(t) {
			stable = append(stable, t)
		}
	}
	return stable
}

// ClassOrIDText concatenates a selection's class and id attributes,
// lowercased, for keyword matching. The node's text is not included.
func ClassOrIDText(s *goquery.Selection) string {
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	return strings.ToLower(class + " " + id)
}

// HasClassOrIDMatch reports whether s's class or id matches re.
func HasClassOrIDMatch(s *goquery.Selection, re *regexp.Regexp) bool {
	return re.MatchString(ClassOrIDText(s))
}

// NormalizeWhitespace collapses whitespace runs and trims ends, per
// spec.md §4.7.3.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SynonymMap resolves a tokenised DOM hint to a canonical dynamic
// field key, per spec.md §4.7.2.
var SynonymMap = map[string]string{
	"author":    "author",
	"byline":    "author",
	"writer":    "author",
	"posted_by": "author",
	"time":      "date",
	"date":      "date",
	"datetime":  "date",
	"published": "date",
	"updated":   "updated",
	"category":  "category",
	"cat":       "category",
	"section":   "category",
	"tag":       "tag",
	"tags":      "tag",
	"label":     "label",
	"badge":     "badge",
	"subtitle":  "subtitle",
	"summary":   "summary",
	"excerpt":   "summary",
	"rating":    "rating",
	"reviews":   "reviews",
	"comment":   "comments",
	"comments":  "comments",
	"meta":      "meta",
}

// TagDefaults maps a tag name to a fallback dynamic-field key when no
// hint token matches anything in SynonymMap, per spec.md §4.7.2.
var TagDefaults = map[string]string{
	"time":  "date",
	"label": "label",
	"small": "meta",
}

// ToSnakeCase normalises a raw DOM-hint token to snake_case: splits on
// non-alphanumeric boundaries and camelCase, lowercases, joins with "_".
func ToSnakeCase(raw string) string {
	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, strings.ToLower(current.String()))
			current.Reset()
		}
	}
	runes := []rune(raw)
	for i, r := range runes {
		switch {
		case r == '-' || r == '_' || r == ' ':
			flush()
		case r >= 'A' && r <= 'Z':
			if i > 0 && current.Len() > 0 {
				prev := runes[i-1]
				if !(prev >= 'A' && prev <= 'Z') {
					flush()
				}
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return strings.Join(words, "_")
}

// ResolveSynonym applies the exact-match then prefix-match synonym
// resolution rule of spec.md §4.7.2. Returns "" if nothing matches.
func ResolveSynonym(token string) string {
	if canonical, ok := SynonymMap[token]; ok {
		return canonical
	}
	for prefix, canonical := range SynonymMap {
		if strings.HasPrefix(token, prefix+"_") || strings.HasPrefix(token, prefix+"-") {
			return canonical
		}
	}
	return ""
}

// InlineTags are skipped when proposing container candidates, per
// spec.md §4.6.1.
var InlineTags = map[string]struct{}{
	"a": {}, "span": {}, "b": {}, "strong": {}, "em": {}, "i": {},
	"small": {}, "label": {}, "mark": {}, "code": {}, "time": {},
	"button": {}, "input": {}, "select": {}, "option": {}, "textarea": {},
	"svg": {}, "path": {}, "br": {}, "hr": {}, "img": {},
}

// IsInlineTag reports whether tag is in the inline-tag skip set.
func IsInlineTag(tag string) bool {
	_, ok := InlineTags[tag]
	return ok
}
