// Package analysis ranks emigration destinations for a user profile with the
// configured AI provider, degrading to a static ranking when no provider answers.
package analysis

import (
	"github.com/auswanderer-plattform/backend/internal/ai"
	"github.com/auswanderer-plattform/backend/internal/models"
)

const (
	// CriteriaCount is the number of rated criteria
	CriteriaCount = 28
	// MaxScore is 28 criteria × 2 points × weight 5
	MaxScore = CriteriaCount * 2 * 5
)

// PreAnalysis holds the answers of the short pre-questionnaire
type PreAnalysis struct {
	CountriesOfInterest []string `json:"countriesOfInterest"`
	SpecialWishes       string   `json:"specialWishes"`
}

// UserProfile holds optional facts about the user
type UserProfile struct {
	Budget       string   `json:"budget,omitempty"`
	Profession   string   `json:"profession,omitempty"`
	FamilyStatus string   `json:"familyStatus,omitempty"`
	Citizenship  string   `json:"citizenship,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	ClimatePref  string   `json:"climatePref,omitempty"`
	NaturePref   string   `json:"naturePref,omitempty"`
}

// Request is one analysis request
type Request struct {
	// CriteriaRatings maps criterion id to a weight between 1 and 5
	CriteriaRatings map[string]int `json:"criteriaRatings" binding:"required"`
	PreAnalysis     *PreAnalysis   `json:"preAnalysis,omitempty"`
	UserProfile     *UserProfile   `json:"userProfile,omitempty"`
}

// CriterionScore is the rating of one country for one criterion
type CriterionScore struct {
	Score       int    `json:"score"`
	Symbol      string `json:"symbol"`
	Explanation string `json:"explanation"`
}

// CountryScore is one ranked country
type CountryScore struct {
	Rank           int                       `json:"rank"`
	Country        string                    `json:"country"`
	CountryCode    string                    `json:"countryCode"`
	Score          int                       `json:"score"`
	MaxScore       int                       `json:"maxScore"`
	Percentage     float64                   `json:"percentage"`
	CriteriaScores map[string]CriterionScore `json:"criteriaScores"`
	Strengths      []string                  `json:"strengths"`
	Considerations []string                  `json:"considerations"`
}

// Alternative is the runner-up suggestion
type Alternative struct {
	Country   string `json:"country"`
	Condition string `json:"condition"`
	Reason    string `json:"reason"`
}

// Recommendation summarizes the ranking
type Recommendation struct {
	TopCountry  string       `json:"topCountry"`
	Summary     string       `json:"summary"`
	NextSteps   []string     `json:"nextSteps"`
	Alternative *Alternative `json:"alternative,omitempty"`
}

// Result is the analysis answer
type Result struct {
	Success        bool           `json:"success"`
	Rankings       []CountryScore `json:"rankings"`
	Recommendation Recommendation `json:"recommendation"`

	Usage    *ai.Usage       `json:"_usage,omitempty"`
	Provider models.Provider `json:"_provider,omitempty"`
	Model    string          `json:"_model,omitempty"`

	// Mock is set when the static ranking was returned
	Mock bool `json:"-"`
}

// ExhaustionPolicy decides what happens when no provider produced a usable answer
type ExhaustionPolicy int

const (
	// ReturnMock answers with the static ranking
	ReturnMock ExhaustionPolicy = iota
	// PropagateError returns the error to the caller
	PropagateError
)

// scorePoints converts a percentage of MaxScore into points
func scorePoints(percentage float64) int {
	return int(roundHalfUp(percentage / 100 * MaxScore))
}
