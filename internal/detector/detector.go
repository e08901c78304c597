// Package detector implements C7, the smart pattern detector: given a
// parsed page it proposes repeating item containers, a pagination
// hint, an infinite-scroll hint, and a content-structure map. It
// replaces the teacher's single-best-content Readability scorer
// (internal/extractor) with DOM clustering, but keeps the teacher's
// traversal discipline and With*-builder config idiom.
package detector

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/smartcrawl/internal/fieldkw"
	"github.com/rohmanhakim/smartcrawl/pkg/urlutil"
)

// Analyze clusters doc's repeating structures and returns the ranked
// candidates plus pagination/scroll/content-structure hints.
func Analyze(doc *goquery.Document, pageURL url.URL, param DetectParam) (PatternSet, *DetectionError) {
	if doc == nil || doc.Selection == nil {
		return PatternSet{}, &DetectionError{
			Message:   "nil document",
			Retryable: false,
			Cause:     ErrCauseParseError,
		}
	}

	buckets := clusterBuckets(doc, param.MinRepeats)
	if len(buckets) == 0 {
		return PatternSet{}, &DetectionError{
			Message:   "no bucket reached min_repeats",
			Retryable: false,
			Cause:     ErrCauseNoCandidates,
		}
	}

	candidates := scoreBuckets(buckets, param)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	pagination := detectPagination(doc, pageURL)
	scroll := detectInfiniteScroll(doc)

	patterns := PatternSet{
		Containers:     candidates,
		Pagination:     pagination,
		InfiniteScroll: scroll,
	}
	patterns.ContentStructure = contentStructure(doc, candidates[0].Selector, param.MaxSamples)

	return patterns, nil
}

// bucketEntry holds every element sharing one structural signature.
// Leaf elements (no child elements) are never bucketed.
type bucketEntry struct {
	signature string
	elements  []*goquery.Selection
}

// clusterBuckets implements §4.6.1: traverse, skip inline/leaf
// candidates, bucket by structural signature, discard small buckets.
func clusterBuckets(doc *goquery.Document, minRepeats int) []bucketEntry {
	order := make([]string, 0)
	index := make(map[string]*bucketEntry)

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		tag := strings.ToLower(goquery.NodeName(s))
		if fieldkw.IsInlineTag(tag) {
			return
		}
		sig, isLeaf := structuralSignature(s)
		if isLeaf {
			return
		}
		entry, ok := index[sig]
		if !ok {
			entry = &bucketEntry{signature: sig}
			index[sig] = entry
			order = append(order, sig)
		}
		entry.elements = append(entry.elements, s)
	})

	buckets := make([]bucketEntry, 0, len(order))
	for _, sig := range order {
		entry := index[sig]
		if len(entry.elements) < minRepeats {
			continue
		}
		buckets = append(buckets, *entry)
	}
	return buckets
}

// structuralSignature computes tag.sortedClassJoin|childTag:count,
// sorted by child tag name. Leaves render as tag.classes|leaf.
func structuralSignature(s *goquery.Selection) (string, bool) {
	tag := strings.ToLower(goquery.NodeName(s))
	classAttr, _ := s.Attr("class")
	classPart := strings.Join(fieldkw.SortedClasses(classAttr), ".")

	children := s.Children()
	if children.Length() == 0 {
		return fmt.Sprintf("%s.%s|leaf", tag, classPart), true
	}

	counts := make(map[string]int)
	children.Each(func(_ int, c *goquery.Selection) {
		counts[strings.ToLower(goquery.NodeName(c))]++
	})
	childTags := make([]string, 0, len(counts))
	for t := range counts {
		childTags = append(childTags, t)
	}
	sort.Strings(childTags)

	parts := make([]string, 0, len(childTags))
	for _, t := range childTags {
		parts = append(parts, fmt.Sprintf("%s:%d", t, counts[t]))
	}
	return fmt.Sprintf("%s.%s|%s", tag, classPart, strings.Join(parts, ",")), false
}

// scoreBuckets takes one representative per bucket, samples its
// field presence, and applies the §4.6.2 scoring formula.
func scoreBuckets(buckets []bucketEntry, param DetectParam) []ContainerCandidate {
	candidates := make([]ContainerCandidate, 0, len(buckets))
	for _, b := range buckets {
		representative := b.elements[0]
		hasTitle := hasTitleSample(representative)
		hasLink := representative.Find("a[href]").Length() > 0
		hasPrice := hasPriceSample(representative)
		hasImage := representative.Find("img").Length() > 0
		hasDescription := hasDescriptionSample(representative)

		count := len(b.elements)
		cappedCount := count
		if cappedCount > param.CountCap {
			cappedCount = param.CountCap
		}

		score := param.CountWeight * cappedCount
		if hasTitle {
			score += param.TitleWeight
		}
		if hasLink {
			score += param.LinkWeight
		}
		if hasPrice {
			score += param.PriceWeight
		}
		if hasImage {
			score += param.ImageWeight
		}
		if hasDescription {
			score += param.DescWeight
		}

		candidates = append(candidates, ContainerCandidate{
			Selector:            generateSelector(representative),
			StructuralSignature: b.signature,
			Count:               count,
			Score:               score,
			HasTitle:            hasTitle,
			HasLink:             hasLink,
			HasPrice:            hasPrice,
			HasImage:            hasImage,
			HasDescription:      hasDescription,
		})
	}
	return candidates
}

func hasTitleSample(s *goquery.Selection) bool {
	found := false
	s.Find("h1,h2,h3,h4,h5,h6").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if len(strings.TrimSpace(h.Text())) > 3 {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}
	return elementMatchingExists(s, fieldkw.TitleKeywordRegex)
}

func hasPriceSample(s *goquery.Selection) bool {
	matched := false
	s.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if fieldkw.HasClassOrIDMatch(el, fieldkw.PriceKeywordRegex) && fieldkw.LooksLikeCurrency(el.Text()) {
			matched = true
			return false
		}
		return true
	})
	if matched {
		return true
	}
	return fieldkw.LooksLikeCurrency(s.Text())
}

func hasDescriptionSample(s *goquery.Selection) bool {
	found := false
	s.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.TrimSpace(el.Text())
		if len(text) > 20 && len(text) < 500 && fieldkw.HasClassOrIDMatch(el, fieldkw.DescriptionKeywordRegex) {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}
	s.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.TrimSpace(p.Text())
		if len(text) > 20 && len(text) < 500 {
			found = true
			return false
		}
		return true
	})
	return found
}

func elementMatchingExists(s *goquery.Selection, re *regexp.Regexp) bool {
	found := false
	s.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if fieldkw.HasClassOrIDMatch(el, re) {
			found = true
			return false
		}
		return true
	})
	return found
}

// generateSelector implements §4.6.3: tag.stableClass1.stableClass2
// (cap 2), else parentTag.parentFirstClass > tag, else the bare tag.
func generateSelector(s *goquery.Selection) string {
	tag := strings.ToLower(goquery.NodeName(s))
	classAttr, _ := s.Attr("class")
	stable := fieldkw.StableClasses(classAttr)
	if len(stable) > 0 {
		if len(stable) > 2 {
			stable = stable[:2]
		}
		return tag + "." + strings.Join(stable, ".")
	}

	parent := s.Parent()
	if parent.Length() > 0 {
		parentClassAttr, _ := parent.Attr("class")
		parentStable := fieldkw.StableClasses(parentClassAttr)
		if len(parentStable) > 0 {
			parentTag := strings.ToLower(goquery.NodeName(parent))
			return fmt.Sprintf("%s.%s > %s", parentTag, parentStable[0], tag)
		}
	}
	return tag
}

// relativeSelector names one element within its container: tag plus
// its first class, or the bare tag.
func relativeSelector(s *goquery.Selection) string {
	tag := strings.ToLower(goquery.NodeName(s))
	classAttr, _ := s.Attr("class")
	tokens := fieldkw.ClassTokens(classAttr)
	if len(tokens) > 0 {
		return tag + "." + tokens[0]
	}
	return tag
}

// detectPagination tries the three strategies of §4.6.4 in order.
func detectPagination(doc *goquery.Document, pageURL url.URL) *PaginationHint {
	if hint := detectNextButton(doc, pageURL); hint != nil {
		return hint
	}
	if hint := detectPageNumbers(doc); hint != nil {
		return hint
	}
	if hint := detectLoadMore(doc); hint != nil {
		return hint
	}
	return nil
}

func detectNextButton(doc *goquery.Document, pageURL url.URL) *PaginationHint {
	var hint *PaginationHint
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		rel, _ := a.Attr("rel")
		haystack := strings.ToLower(a.Text() + " " + fieldkw.ClassOrIDText(a) + " " + rel)
		for _, kw := range fieldkw.PaginationKeywords {
			if strings.Contains(haystack, kw) {
				resolved, err := urlutil.Resolve(pageURL, href)
				if err != nil {
					return true
				}
				hint = &PaginationHint{
					Kind:     PaginationButton,
					NextURL:  resolved.String(),
					Selector: relativeSelector(a),
				}
				return false
			}
		}
		return true
	})
	return hint
}

var pureIntegerRegex = regexp.MustCompile(`^[0-9]+$`)

func detectPageNumbers(doc *goquery.Document) *PaginationHint {
	type pageLink struct {
		page int
		href string
	}
	var links []pageLink

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		if !pureIntegerRegex.MatchString(text) {
			return
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return
		}
		href, _ := a.Attr("href")
		links = append(links, pageLink{page: n, href: href})
	})
	if len(links) < 2 {
		return nil
	}

	sort.Slice(links, func(i, j int) bool { return links[i].page < links[j].page })

	pattern := derivePagePattern(links[0].href, links[1].href)
	known := make([]int, 0, len(links))
	for _, l := range links {
		known = append(known, l.page)
	}

	return &PaginationHint{
		Kind:       PaginationLinks,
		URLPattern: pattern,
		Current:    links[0].page,
		KnownPages: known,
	}
}

// derivePagePattern replaces the differing middle of two page-number
// hrefs with {page}, by common prefix/suffix.
func derivePagePattern(a, b string) string {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	j := 0
	for j < len(a)-i && j < len(b)-i && a[len(a)-1-j] == b[len(b)-1-j] {
		j++
	}
	prefix := a[:i]
	suffix := a[len(a)-j:]
	if prefix+suffix == a && prefix+suffix == b {
		// a == b once the differing middle is empty; nothing to template.
		return a
	}
	return prefix + "{page}" + suffix
}

func detectLoadMore(doc *goquery.Document) *PaginationHint {
	var hint *PaginationHint
	doc.Find("button,a,div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		haystack := strings.ToLower(s.Text() + " " + fieldkw.ClassOrIDText(s))
		for _, kw := range fieldkw.LoadMoreKeywords {
			if strings.Contains(haystack, kw) {
				hint = &PaginationHint{
					Kind:     PaginationLoadMore,
					Selector: generateSelector(s),
				}
				return false
			}
		}
		return true
	})
	return hint
}

// detectInfiniteScroll implements §4.6.5: detection-only, the core
// never drives an infinite-scroll page itself.
func detectInfiniteScroll(doc *goquery.Document) ScrollHint {
	var indicators []string

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if fieldkw.InfiniteScrollKeywords.MatchString(s.Text()) {
			indicators = append(indicators, "script")
			return false
		}
		return true
	})

	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if fieldkw.HasClassOrIDMatch(s, fieldkw.InfiniteScrollKeywords) {
			indicators = append(indicators, "dom")
			return false
		}
		return true
	})

	if rawHTML, err := doc.Selection.Html(); err == nil {
		if fieldkw.InfiniteScrollAPIPattern.MatchString(rawHTML) {
			indicators = append(indicators, "api")
		}
	}

	return ScrollHint{
		Detected:   len(indicators) > 0,
		Indicators: indicators,
	}
}

// contentStructure implements §4.6.6: over up to maxSamples matches
// of the top container, find title/link/image/price nodes and emit
// the most-common relative selector per field.
func contentStructure(doc *goquery.Document, topSelector string, maxSamples int) map[string]string {
	result := make(map[string]string)
	if topSelector == "" {
		return result
	}

	votes := map[string]map[string]int{
		"title": {},
		"link":  {},
		"image": {},
		"price": {},
	}

	samples := doc.Find(topSelector)
	n := samples.Length()
	if n > maxSamples {
		n = maxSamples
	}

	for i := 0; i < n; i++ {
		sample := samples.Eq(i)
		if title := findTitleNode(sample); title != nil {
			votes["title"][relativeSelector(title)]++
		}
		if link := sample.Find("a[href]").First(); link.Length() > 0 {
			votes["link"][relativeSelector(link)]++
		}
		if img := sample.Find("img").First(); img.Length() > 0 {
			votes["image"][relativeSelector(img)]++
		}
		if price := findPriceNode(sample); price != nil {
			votes["price"][relativeSelector(price)]++
		}
	}

	for field, counts := range votes {
		best, bestCount := "", 0
		for selector, count := range counts {
			if count > bestCount {
				best, bestCount = selector, count
			}
		}
		if best != "" {
			result[field] = best
		}
	}
	return result
}

func findTitleNode(sample *goquery.Selection) *goquery.Selection {
	heading := sample.Find("h1,h2,h3,h4,h5,h6").First()
	if heading.Length() > 0 && len(strings.TrimSpace(heading.Text())) > 3 {
		return heading
	}
	var found *goquery.Selection
	sample.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if fieldkw.HasClassOrIDMatch(el, fieldkw.TitleKeywordRegex) {
			found = el
			return false
		}
		return true
	})
	return found
}

func findPriceNode(sample *goquery.Selection) *goquery.Selection {
	var found *goquery.Selection
	sample.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if fieldkw.HasClassOrIDMatch(el, fieldkw.PriceKeywordRegex) {
			found = el
			return false
		}
		return true
	})
	if found != nil {
		return found
	}
	// Fall back to the first leaf whose own text looks like a price,
	// to avoid matching a broad ancestor container.
	sample.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if el.Children().Length() > 0 {
			return true
		}
		if fieldkw.LooksLikeCurrency(el.Text()) {
			found = el
			return false
		}
		return true
	})
	return found
}
