package models

// CaseCandidate is a case-law record to be ranked. Candidates arrive from an
// external case-search provider; RelevanceScore is the provider's original
// score and is overwritten by the ranker.
type CaseCandidate struct {
	Title          string  `json:"title"`
	Court          string  `json:"court,omitempty"`
	CaseYear       string  `json:"case_year,omitempty"`
	URL            string  `json:"url"`
	Snippet        string  `json:"snippet"`
	FullContent    string  `json:"full_content,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// RankingScores holds the five independent sub-scores, each in [0,1], and the
// weighted final score. Computed fresh per (candidate, query) pair.
type RankingScores struct {
	StatuteMatch      float64 `json:"statute_match"`
	KeywordSimilarity float64 `json:"keyword_similarity"`
	CourtHierarchy    float64 `json:"court_hierarchy"`
	Recency           float64 `json:"recency"`
	CitationNetwork   float64 `json:"citation_network"`
	FinalScore        float64 `json:"final_score"`
}

// RankedCase is a candidate annotated with its score breakdown and the
// features extracted during scoring
type RankedCase struct {
	CaseCandidate
	ScoringBreakdown  RankingScores `json:"scoring_breakdown"`
	StatuteReferences []string      `json:"statute_references"`
	CaseCitations     []string      `json:"case_citations"`
	LegalConcepts     []string      `json:"legal_concepts"`
}
