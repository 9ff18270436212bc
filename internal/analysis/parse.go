package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
)

var (
	ErrNoJSON          = errors.New("no JSON found in response")
	ErrInvalidResponse = errors.New("invalid analysis response")
)

// jsonBlock matches from the first '{' to the last '}'
var jsonBlock = regexp.MustCompile(`\{[\s\S]*\}`)

type rawRanking struct {
	Country        string   `json:"country"`
	CountryCode    string   `json:"countryCode"`
	Percentage     float64  `json:"percentage"`
	Strengths      []string `json:"strengths"`
	Considerations []string `json:"considerations"`
}

type rawAnalysis struct {
	Rankings       []rawRanking    `json:"rankings"`
	Recommendation *Recommendation `json:"recommendation"`
}

// ParseResponse extracts the ranking from model output.
// Ranks are reassigned from list order and scores derived from percentages.
func ParseResponse(text string) (*Result, error) {
	block := jsonBlock.FindString(text)
	if block == "" {
		return nil, ErrNoJSON
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(raw.Rankings) == 0 {
		return nil, fmt.Errorf("%w: no rankings", ErrInvalidResponse)
	}
	if raw.Recommendation == nil {
		return nil, fmt.Errorf("%w: no recommendation", ErrInvalidResponse)
	}

	rankings := make([]CountryScore, len(raw.Rankings))
	for i, r := range raw.Rankings {
		rankings[i] = CountryScore{
			Rank:           i + 1,
			Country:        r.Country,
			CountryCode:    r.CountryCode,
			Score:          scorePoints(r.Percentage),
			MaxScore:       MaxScore,
			Percentage:     r.Percentage,
			CriteriaScores: map[string]CriterionScore{},
			Strengths:      nonNil(r.Strengths),
			Considerations: nonNil(r.Considerations),
		}
	}

	rec := *raw.Recommendation
	rec.NextSteps = nonNil(rec.NextSteps)

	return &Result{
		Success:        true,
		Rankings:       rankings,
		Recommendation: rec,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// roundHalfUp rounds .5 towards positive infinity
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
