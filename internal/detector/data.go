package detector

// ContainerCandidate is one repeating-container bucket surviving
// clustering, with its generated CSS selector and score.
type ContainerCandidate struct {
	Selector            string
	StructuralSignature string
	Count               int
	Score                int
	HasTitle            bool
	HasLink             bool
	HasPrice            bool
	HasImage            bool
	HasDescription       bool
}

// PaginationKind distinguishes the three pagination strategies of
// spec.md §4.6.4.
type PaginationKind string

const (
	PaginationNone     PaginationKind = ""
	PaginationButton   PaginationKind = "button"
	PaginationLinks    PaginationKind = "links"
	PaginationLoadMore PaginationKind = "load_more"
)

// PaginationHint is a tagged union over the three pagination
// strategies; only the fields relevant to Kind are populated.
type PaginationHint struct {
	Kind PaginationKind

	// PaginationButton
	NextURL  string
	Selector string

	// PaginationLinks
	URLPattern string
	Current    int
	KnownPages []int
}

// ScrollHint reports the infinite-scroll indicators found, per spec.md
// §4.6.5. Detection-only: the core never attempts to drive scrolling.
type ScrollHint struct {
	Detected   bool
	Indicators []string
}

// PatternSet is the full output of Analyze: the ranked container
// candidates (best first), an optional pagination hint, an optional
// scroll hint, and the content-structure map for the top container.
type PatternSet struct {
	Containers       []ContainerCandidate
	Pagination       *PaginationHint
	InfiniteScroll   ScrollHint
	ContentStructure map[string]string
}

// TopContainer returns the highest-scoring candidate, or the zero
// value and false if no candidate survived clustering.
func (p PatternSet) TopContainer() (ContainerCandidate, bool) {
	if len(p.Containers) == 0 {
		return ContainerCandidate{}, false
	}
	return p.Containers[0], true
}

// DetectParam carries the tunable clustering/scoring constants, in
// the teacher's With*-builder idiom.
type DetectParam struct {
	MinRepeats   int
	MaxSamples   int
	CountWeight  int
	CountCap     int
	TitleWeight  int
	LinkWeight   int
	PriceWeight  int
	ImageWeight  int
	DescWeight   int
}

// DefaultDetectParam returns the weights from spec.md §4.6.2/§4.6.6.
func DefaultDetectParam() DetectParam {
	return DetectParam{
		MinRepeats:  3,
		MaxSamples:  5,
		CountWeight: 10,
		CountCap:    20,
		TitleWeight: 100,
		LinkWeight:  50,
		PriceWeight: 30,
		ImageWeight: 20,
		DescWeight:  10,
	}
}

// WithMinRepeats overrides the clustering discard threshold.
func (p DetectParam) WithMinRepeats(n int) DetectParam {
	p.MinRepeats = n
	return p
}

// WithMaxSamples overrides the content-structure sample cap.
func (p DetectParam) WithMaxSamples(n int) DetectParam {
	p.MaxSamples = n
	return p
}
