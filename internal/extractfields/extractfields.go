// Package extractfields implements C8, the smart extractor: given a
// document and the PatternSet produced by internal/detector, it walks
// every match of the top container and produces cleaned item.Item
// records. It replaces the teacher's mdconvert/normalize packages'
// role in the pipeline while reusing their DOM-walk/cleaning idioms.
package extractfields

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/smartcrawl/internal/detector"
	"github.com/rohmanhakim/smartcrawl/internal/fieldkw"
	"github.com/rohmanhakim/smartcrawl/internal/item"
	"github.com/rohmanhakim/smartcrawl/pkg/urlutil"
)

const maxDynamicFieldDepth = 2

// Extract selects the top container from patterns and produces one
// item per match, deduplicated by (title, link) and filtered to
// valid items per spec.md §4.7.3.
func Extract(doc *goquery.Document, pageURL url.URL, patterns detector.PatternSet) ([]item.Item, *ExtractionError) {
	top, ok := patterns.TopContainer()
	if !ok || top.Selector == "" {
		return nil, &ExtractionError{
			Message:   "pattern set has no container",
			Retryable: false,
			Cause:     ErrCauseNoContainer,
		}
	}

	matches := doc.Find(top.Selector)
	if matches.Length() == 0 {
		return nil, &ExtractionError{
			Message:   "container selector matched nothing",
			Retryable: true,
			Cause:     ErrCauseNoMatches,
		}
	}

	seen := make(map[string]struct{})
	items := make([]item.Item, 0, matches.Length())

	matches.Each(func(_ int, container *goquery.Selection) {
		it := extractOne(container, pageURL, patterns, top)
		if !it.Valid() {
			return
		}
		key := it.DedupeKey()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		items = append(items, it)
	})

	return items, nil
}

func extractOne(container *goquery.Selection, pageURL url.URL, patterns detector.PatternSet, top detector.ContainerCandidate) item.Item {
	it := item.New()
	it.Meta = item.Meta{Selector: top.Selector, StructuralSignature: top.StructuralSignature}

	usedNodes := make(map[interface{}]struct{})

	if title, node := extractTitle(container, patterns.ContentStructure["title"]); title != "" {
		it.Set(item.FieldTitle, title)
		markUsed(usedNodes, node)
	}
	if link, node := extractLink(container, pageURL, patterns.ContentStructure["link"]); link != "" {
		it.Set(item.FieldLink, link)
		markUsed(usedNodes, node)
	}
	if img, node := extractImage(container, pageURL, patterns.ContentStructure["image"]); img != "" {
		it.Set(item.FieldImage, img)
		markUsed(usedNodes, node)
	}
	if price, node := extractPrice(container, patterns.ContentStructure["price"]); price != "" {
		it.Set(item.FieldPrice, price)
		if normalized := NormalizePrice(price); normalized != nil {
			it.Set(item.FieldPriceNormalized, strconv.FormatFloat(*normalized, 'f', -1, 64))
		}
		markUsed(usedNodes, node)
	}
	if desc, node := extractDescription(container); desc != "" {
		it.Set(item.FieldDescription, desc)
		markUsed(usedNodes, node)
	}

	extractDynamicFields(&it, container, usedNodes, pageURL)

	return it
}

func markUsed(used map[interface{}]struct{}, s *goquery.Selection) {
	if s == nil || s.Length() == 0 {
		return
	}
	used[s.Get(0)] = struct{}{}
}

func clean(text string) string {
	return fieldkw.NormalizeWhitespace(text)
}

func isAllowedHrefScheme(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return strings.HasPrefix(trimmed, "http://") ||
		strings.HasPrefix(trimmed, "https://") ||
		strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/")
}

func resolveHref(raw string, pageURL url.URL) string {
	if !isAllowedHrefScheme(raw) {
		return ""
	}
	resolved, err := urlutil.Resolve(pageURL, raw)
	if err != nil {
		return ""
	}
	return resolved.String()
}

// --- Title (§4.7.1) ---

func extractTitle(container *goquery.Selection, structureSelector string) (string, *goquery.Selection) {
	if structureSelector != "" {
		if node := container.Find(structureSelector).First(); node.Length() > 0 {
			if t := clean(node.Text()); t != "" {
				return t, node
			}
		}
	}

	heading := container.Find("h1,h2,h3,h4,h5,h6").First()
	if heading.Length() > 0 {
		if t := clean(heading.Text()); len(t) > 3 {
			return t, heading
		}
	}

	if node := firstMatching(container, fieldkw.TitleKeywordRegex); node != nil {
		if t := clean(node.Text()); t != "" {
			return t, node
		}
	}

	if titleAttr, ok := container.Attr("title"); ok {
		if t := clean(titleAttr); t != "" {
			return t, container
		}
	}

	if img := container.Find("img").First(); img.Length() > 0 {
		if alt, ok := img.Attr("alt"); ok {
			if t := clean(alt); t != "" {
				return t, img
			}
		}
	}

	return "", nil
}

// --- Link (§4.7.1) ---

var onclickURLRegex = regexp.MustCompile(`(?:location\.href|window\.open)\s*\(?\s*['"]([^'"]+)['"]`)

func extractLink(container *goquery.Selection, pageURL url.URL, structureSelector string) (string, *goquery.Selection) {
	if structureSelector != "" {
		node := container.Find(structureSelector).First()
		if node.Length() > 0 {
			href, _ := node.Attr("href")
			if resolved := resolveHref(href, pageURL); resolved != "" {
				return resolved, node
			}
		}
	}

	anchor := container.Find("a[href]").First()
	if anchor.Length() > 0 {
		href, _ := anchor.Attr("href")
		if resolved := resolveHref(href, pageURL); resolved != "" {
			return resolved, anchor
		}
	}

	for _, attr := range []string{"data-url", "data-href", "data-link"} {
		if val, ok := container.Attr(attr); ok {
			if resolved := resolveHref(val, pageURL); resolved != "" {
				return resolved, container
			}
		}
	}

	if onclick, ok := container.Attr("onclick"); ok {
		if m := onclickURLRegex.FindStringSubmatch(onclick); len(m) == 2 {
			if resolved := resolveHref(m[1], pageURL); resolved != "" {
				return resolved, container
			}
		}
	}

	return "", nil
}

// --- Image (§4.7.1) ---

var imageAttrs = []string{"src", "data-src", "data-lazy", "data-original", "data-srcset"}

func firstImageAttrValue(s *goquery.Selection) string {
	for _, attr := range imageAttrs {
		val, ok := s.Attr(attr)
		if !ok || val == "" {
			continue
		}
		if fields := strings.Fields(val); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

var styleURLRegex = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

func extractImage(container *goquery.Selection, pageURL url.URL, structureSelector string) (string, *goquery.Selection) {
	if structureSelector != "" {
		node := container.Find(structureSelector).First()
		if node.Length() > 0 {
			if val := firstImageAttrValue(node); val != "" {
				if resolved := resolveHref(val, pageURL); resolved != "" {
					return resolved, node
				}
			}
		}
	}

	img := container.Find("img").First()
	if img.Length() > 0 {
		if val := firstImageAttrValue(img); val != "" {
			if resolved := resolveHref(val, pageURL); resolved != "" {
				return resolved, img
			}
		}
	}

	var styleNode *goquery.Selection
	container.Find("[style]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		if styleURLRegex.MatchString(style) {
			styleNode = s
			return false
		}
		return true
	})
	if styleNode != nil {
		style, _ := styleNode.Attr("style")
		if m := styleURLRegex.FindStringSubmatch(style); len(m) == 2 {
			if resolved := resolveHref(m[1], pageURL); resolved != "" {
				return resolved, styleNode
			}
		}
	}

	source := container.Find("source[srcset]").First()
	if source.Length() > 0 {
		srcset, _ := source.Attr("srcset")
		if fields := strings.Fields(srcset); len(fields) > 0 {
			if resolved := resolveHref(fields[0], pageURL); resolved != "" {
				return resolved, source
			}
		}
	}

	return "", nil
}

// --- Price (§4.7.1) ---

func extractPrice(container *goquery.Selection, structureSelector string) (string, *goquery.Selection) {
	if structureSelector != "" {
		node := container.Find(structureSelector).First()
		if node.Length() > 0 {
			if t := clean(node.Text()); t != "" {
				return t, node
			}
		}
	}

	var priceNode *goquery.Selection
	container.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !fieldkw.HasClassOrIDMatch(s, fieldkw.PriceKeywordRegex) {
			return true
		}
		t := clean(s.Text())
		if fieldkw.LooksLikeCurrency(t) {
			priceNode = s
			return false
		}
		return true
	})
	if priceNode != nil {
		return clean(priceNode.Text()), priceNode
	}

	if dataPrice, ok := container.Attr("data-price"); ok {
		if t := clean(dataPrice); t != "" {
			return t, container
		}
	}

	text := clean(container.Text())
	if m := fieldkw.CurrencyRegex.FindString(text); m != "" {
		return m, container
	}

	return "", nil
}

// --- Description (§4.7.1) ---

func extractDescription(container *goquery.Selection) (string, *goquery.Selection) {
	var descNode *goquery.Selection
	container.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !fieldkw.HasClassOrIDMatch(s, fieldkw.DescriptionKeywordRegex) {
			return true
		}
		t := clean(s.Text())
		if len(t) > 20 && len(t) < 500 {
			descNode = s
			return false
		}
		return true
	})
	if descNode != nil {
		return stripMarkdownSyntax(clean(descNode.Text())), descNode
	}

	var pNode *goquery.Selection
	container.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		t := clean(p.Text())
		if len(t) > 20 && len(t) < 500 {
			pNode = p
			return false
		}
		return true
	})
	if pNode != nil {
		return stripMarkdownSyntax(clean(pNode.Text())), pNode
	}

	meta := container.Find(`meta[name="description"]`).First()
	if meta.Length() > 0 {
		if content, ok := meta.Attr("content"); ok {
			if t := clean(content); t != "" {
				return stripMarkdownSyntax(t), meta
			}
		}
	}

	return "", nil
}

func firstMatching(container *goquery.Selection, re *regexp.Regexp) *goquery.Selection {
	var found *goquery.Selection
	container.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if fieldkw.HasClassOrIDMatch(s, re) {
			found = s
			return false
		}
		return true
	})
	return found
}

// --- Dynamic fields (§4.7.2) ---

var dynamicFieldAttrs = []string{
	"class", "id", "itemprop", "aria-label",
	"data-name", "data-field", "data-type", "data-category", "data-meta",
}

func extractDynamicFields(it *item.Item, container *goquery.Selection, usedNodes map[interface{}]struct{}, pageURL url.URL) {
	for _, node := range depthLimitedDescendants(container, maxDynamicFieldDepth) {
		if _, used := usedNodes[node.Get(0)]; used {
			continue
		}
		key := inferFieldKey(node)
		if key == "" {
			continue
		}
		value := dynamicNodeValue(node, pageURL)
		if value == "" {
			continue
		}
		it.SetIfAbsent(key, value)
	}
}

func depthLimitedDescendants(container *goquery.Selection, maxDepth int) []*goquery.Selection {
	var result []*goquery.Selection
	var walk func(s *goquery.Selection, depth int)
	walk = func(s *goquery.Selection, depth int) {
		if depth >= maxDepth {
			return
		}
		s.Children().Each(func(_ int, c *goquery.Selection) {
			result = append(result, c)
			walk(c, depth+1)
		})
	}
	walk(container, 0)
	return result
}

func inferFieldKey(s *goquery.Selection) string {
	var firstToken string
	for _, attr := range dynamicFieldAttrs {
		val, ok := s.Attr(attr)
		if !ok || val == "" {
			continue
		}
		snake := fieldkw.ToSnakeCase(val)
		if snake == "" {
			continue
		}
		if key := fieldkw.ResolveSynonym(snake); key != "" {
			return key
		}
		tokens := strings.Split(snake, "_")
		for _, t := range tokens {
			if key := fieldkw.ResolveSynonym(t); key != "" {
				return key
			}
		}
		if firstToken == "" && len(tokens) > 0 && tokens[0] != "" {
			firstToken = tokens[0]
		}
	}
	if firstToken != "" {
		return firstToken
	}

	tag := strings.ToLower(goquery.NodeName(s))
	if def, ok := fieldkw.TagDefaults[tag]; ok {
		return def
	}
	return ""
}

func dynamicNodeValue(s *goquery.Selection, pageURL url.URL) string {
	switch strings.ToLower(goquery.NodeName(s)) {
	case "img":
		if val := firstImageAttrValue(s); val != "" {
			return resolveHref(val, pageURL)
		}
		return ""
	case "a":
		text := clean(s.Text())
		if len(text) < 2 {
			href, _ := s.Attr("href")
			return resolveHref(href, pageURL)
		}
		return text
	case "time":
		if dt, ok := s.Attr("datetime"); ok && dt != "" {
			return dt
		}
		return clean(s.Text())
	case "meta":
		content, _ := s.Attr("content")
		return content
	default:
		return clean(s.Text())
	}
}
