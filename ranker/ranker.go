// Package ranker re-ranks case-law candidates with a multi-factor relevance
// model: statute matches, keyword similarity, court hierarchy, recency and
// citation network, combined as a fixed convex weighting.
package ranker

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"lexfind-backend/models"
)

// Weights is the convex combination applied to the five sub-scores. The
// values must sum to 1.0.
type Weights struct {
	StatuteMatch      float64
	KeywordSimilarity float64
	CourtHierarchy    float64
	Recency           float64
	CitationNetwork   float64
}

// DefaultWeights favors statute matching over everything else: a case on the
// right statute beats a textually similar case on the wrong one
func DefaultWeights() Weights {
	return Weights{
		StatuteMatch:      0.40,
		KeywordSimilarity: 0.30,
		CourtHierarchy:    0.15,
		Recency:           0.10,
		CitationNetwork:   0.05,
	}
}

// Validate checks the weights form a convex combination
func (w Weights) Validate() error {
	for _, v := range []float64{w.StatuteMatch, w.KeywordSimilarity, w.CourtHierarchy, w.Recency, w.CitationNetwork} {
		if v < 0 {
			return fmt.Errorf("negative ranking weight %v", v)
		}
	}
	sum := w.StatuteMatch + w.KeywordSimilarity + w.CourtHierarchy + w.Recency + w.CitationNetwork
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("ranking weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// Config externalizes every tunable of the ranking model so deployments can
// adjust scoring without code changes
type Config struct {
	Weights Weights
	// CourtHierarchy maps lowercase court-name substrings to tier scores.
	// UnknownCourtScore applies when no entry matches.
	CourtHierarchy    map[string]float64
	UnknownCourtScore float64
	// LegalConcepts maps a concept category to its trigger keywords
	LegalConcepts map[string][]string
	// StatuteVocabulary lists the statute names recognized during feature
	// extraction
	StatuteVocabulary []string
}

// DefaultConfig returns the scoring tables for the Singapore courts deployment
func DefaultConfig() Config {
	return Config{
		Weights: DefaultWeights(),
		CourtHierarchy: map[string]float64{
			"court of appeal":  1.0,
			"high court":       0.8,
			"state courts":     0.6,
			"district court":   0.6,
			"magistrate court": 0.4,
			"family court":     0.5,
			"youth court":      0.4,
			"coroner court":    0.4,
			"tribunal":         0.3,
		},
		UnknownCourtScore: 0.2,
		LegalConcepts: map[string][]string{
			"contract":   {"contract", "agreement", "breach", "consideration", "offer", "acceptance"},
			"tort":       {"negligence", "duty of care", "damages", "liability", "tort"},
			"privacy":    {"personal data", "privacy", "data protection", "consent", "disclosure"},
			"employment": {"employment", "wrongful dismissal", "discrimination", "harassment"},
			"corporate":  {"directors", "shareholders", "company", "corporate governance"},
			"property":   {"property", "land", "tenancy", "lease", "title"},
		},
		StatuteVocabulary: []string{
			"personal data protection act",
			"companies act",
			"partnership act",
			"employment act",
			"trade marks act",
			"copyright act",
			"criminal procedure code",
			"penal code",
			"evidence act",
		},
	}
}

// Case citation patterns: [2024] SGCA 15, [2024] 1 SLR 123, (2024) 1 SLR 123
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[\d{4}\]\s+\w+\s+\d+`),
	regexp.MustCompile(`\[\d{4}\]\s+\d+\s+SLR\s+\d+`),
	regexp.MustCompile(`\(\d{4}\)\s+\d+\s+SLR\s+\d+`),
}

// Ranker scores and orders case candidates
type Ranker struct {
	cfg Config
	// now is injectable so recency scoring is reproducible in tests
	now func() time.Time
}

// Option is a functional option for Ranker
type Option func(*Ranker)

// WithNow overrides the clock used for recency scoring
func WithNow(now func() time.Time) Option {
	return func(r *Ranker) {
		r.now = now
	}
}

// New creates a ranker from a validated config
func New(cfg Config, opts ...Option) (*Ranker, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	r := &Ranker{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RankRequest carries the query context the scores are computed against
type RankRequest struct {
	Query          string
	TargetStatutes []string
	QueryFacts     []string
}

// Rank scores every candidate and returns them ordered by final score
// descending. The sort is stable: tied candidates keep their input order.
// A scoring failure on one candidate keeps that candidate with its original
// provider score rather than dropping it.
func (r *Ranker) Rank(candidates []models.CaseCandidate, req RankRequest) []models.RankedCase {
	ranked := make([]models.RankedCase, 0, len(candidates))

	for i, candidate := range candidates {
		rc, err := r.scoreCandidate(candidate, req)
		if err != nil {
			log.Printf("Failed to score case %d (%s): %v", i, candidate.Title, err)
			rc = models.RankedCase{CaseCandidate: candidate}
			rc.ScoringBreakdown.FinalScore = candidate.RelevanceScore
		}
		ranked = append(ranked, rc)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ScoringBreakdown.FinalScore > ranked[j].ScoringBreakdown.FinalScore
	})

	return ranked
}

// scoreCandidate extracts features and computes the weighted score. A panic
// during extraction is converted to an error so one bad candidate cannot
// abort the batch.
func (r *Ranker) scoreCandidate(candidate models.CaseCandidate, req RankRequest) (rc models.RankedCase, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scoring panic: %v", p)
		}
	}()

	text := candidateText(candidate)

	rc = models.RankedCase{
		CaseCandidate:     candidate,
		StatuteReferences: r.extractStatuteReferences(text),
		CaseCitations:     ExtractCaseCitations(text),
		LegalConcepts:     r.extractLegalConcepts(text),
	}

	scores := models.RankingScores{
		StatuteMatch:      r.statuteMatchScore(text, rc.StatuteReferences, req.TargetStatutes),
		KeywordSimilarity: keywordSimilarityScore(text, req.Query, req.QueryFacts),
		CourtHierarchy:    r.courtHierarchyScore(candidate.Court),
		Recency:           r.recencyScore(candidate.CaseYear),
		CitationNetwork:   citationNetworkScore(len(rc.CaseCitations)),
	}

	w := r.cfg.Weights
	scores.FinalScore = w.StatuteMatch*scores.StatuteMatch +
		w.KeywordSimilarity*scores.KeywordSimilarity +
		w.CourtHierarchy*scores.CourtHierarchy +
		w.Recency*scores.Recency +
		w.CitationNetwork*scores.CitationNetwork

	rc.ScoringBreakdown = scores
	rc.RelevanceScore = scores.FinalScore
	return rc, nil
}

// candidateText is the text all feature extraction runs against: title plus
// full content when available, falling back to the snippet
func candidateText(c models.CaseCandidate) string {
	body := c.FullContent
	if body == "" {
		body = c.Snippet
	}
	return c.Title + " " + body
}

// statuteMatchScore scores each target statute: 1.0 for a statute name
// adjacent to a section marker, 0.5 for a bare mention, 0 otherwise. The sum
// is normalized by the target count, so one perfect match among many targets
// still scores low; the model rewards comprehensive statute coverage.
func (r *Ranker) statuteMatchScore(text string, references, targetStatutes []string) float64 {
	if len(targetStatutes) == 0 || len(references) == 0 {
		return 0
	}

	lower := strings.ToLower(text)
	score := 0.0

	for _, target := range targetStatutes {
		targetLower := strings.ToLower(target)
		quoted := regexp.QuoteMeta(targetLower)

		sectionPatterns := []string{
			`\bs\s*\d+[a-z]*\s+` + quoted,
			`section\s+\d+[a-z]*\s+` + quoted,
			quoted + `\s+s\s*\d+[a-z]*`,
			quoted + `\s+section\s+\d+[a-z]*`,
		}

		matched := false
		for _, pattern := range sectionPatterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			if re.MatchString(lower) {
				score += 1.0
				matched = true
				break
			}
		}
		if !matched && strings.Contains(lower, targetLower) {
			score += 0.5
		}
	}

	return clamp01(score / float64(len(targetStatutes)))
}

// keywordSimilarityScore is the fraction of query terms present in the text
// (weight 0.5) plus the fraction of query facts present (weight 0.5)
func keywordSimilarityScore(text, query string, queryFacts []string) float64 {
	lower := strings.ToLower(text)
	score := 0.0

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) > 0 {
		matching := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matching++
			}
		}
		score += float64(matching) / float64(len(terms)) * 0.5
	}

	if len(queryFacts) > 0 {
		matching := 0
		for _, fact := range queryFacts {
			if strings.Contains(lower, strings.ToLower(fact)) {
				matching++
			}
		}
		score += float64(matching) / float64(len(queryFacts)) * 0.5
	}

	return clamp01(score)
}

// courtHierarchyScore looks the court string up against the hierarchy table
// by case-insensitive substring, defaulting to the unknown tier
func (r *Ranker) courtHierarchyScore(court string) float64 {
	if court == "" {
		return r.cfg.UnknownCourtScore
	}

	courtLower := strings.ToLower(court)
	for name, score := range r.cfg.CourtHierarchy {
		if strings.Contains(courtLower, name) {
			return score
		}
	}
	return r.cfg.UnknownCourtScore
}

// recencyScore is a step function of case age. Recent cases interpret current
// statute amendments; unparseable years score zero.
func (r *Ranker) recencyScore(caseYear string) float64 {
	if caseYear == "" {
		return 0
	}
	year, err := strconv.Atoi(strings.TrimSpace(caseYear))
	if err != nil {
		return 0
	}

	yearsAgo := r.now().Year() - year
	switch {
	case yearsAgo <= 1:
		return 1.0
	case yearsAgo <= 3:
		return 0.8
	case yearsAgo <= 5:
		return 0.6
	case yearsAgo <= 10:
		return 0.4
	default:
		return 0.2
	}
}

// citationNetworkScore is a step function of citation count; heavily cited
// cases are treated as more authoritative
func citationNetworkScore(citations int) float64 {
	switch {
	case citations >= 10:
		return 1.0
	case citations >= 5:
		return 0.8
	case citations >= 2:
		return 0.6
	case citations >= 1:
		return 0.4
	default:
		return 0
	}
}

// extractStatuteReferences matches the statute vocabulary against the text
func (r *Ranker) extractStatuteReferences(text string) []string {
	if text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	var statutes []string
	for _, name := range r.cfg.StatuteVocabulary {
		if strings.Contains(lower, name) {
			statutes = append(statutes, titleCase(name))
		}
	}
	return statutes
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ExtractCaseCitations regex-matches bracket-year citation strings, with
// duplicates removed in first-seen order
func ExtractCaseCitations(text string) []string {
	if text == "" {
		return nil
	}

	seen := make(map[string]bool)
	var citations []string
	for _, pattern := range citationPatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			if !seen[match] {
				seen[match] = true
				citations = append(citations, match)
			}
		}
	}
	return citations
}

// extractLegalConcepts flags each concept category at most once, regardless
// of how many of its keywords hit
func (r *Ranker) extractLegalConcepts(text string) []string {
	if text == "" {
		return nil
	}

	lower := strings.ToLower(text)
	var concepts []string
	for _, category := range sortedKeys(r.cfg.LegalConcepts) {
		for _, keyword := range r.cfg.LegalConcepts[category] {
			if strings.Contains(lower, keyword) {
				concepts = append(concepts, category)
				break
			}
		}
	}
	return concepts
}

// ExtractQueryFacts pulls known factual elements out of a raw query string,
// for callers that do not supply facts explicitly
func ExtractQueryFacts(query string) []string {
	factIndicators := []string{
		"emotional distress",
		"personal data",
		"without consent",
		"advertising",
		"breach of contract",
		"negligence",
		"damages",
		"compensation",
	}

	queryLower := strings.ToLower(query)
	var facts []string
	for _, fact := range factIndicators {
		if strings.Contains(queryLower, fact) {
			facts = append(facts, fact)
		}
	}
	return facts
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
