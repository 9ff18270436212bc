package analysis

type mockCountry struct {
	name, code     string
	percentage     float64
	strengths      []string
	considerations []string
}

var mockCountries = []mockCountry{
	{
		name: "Portugal", code: "PT", percentage: 92,
		strengths: []string{
			"Niedrige Lebenshaltungskosten im EU-Vergleich",
			"Über 3.000 Sonnenstunden pro Jahr",
			"EU-Freizügigkeit",
			"Große internationale Expat-Community",
			"NHR-Steuervorteile für Zuzügler",
		},
		considerations: []string{
			"Portugiesisch lernen empfohlen für tiefere Integration",
			"Immobilienpreise in Lissabon und Porto steigen stark",
		},
	},
	{
		name: "Spanien", code: "ES", percentage: 87,
		strengths: []string{
			"Exzellentes Klima, besonders im Süden",
			"Große deutsche Community an der Küste",
			"EU-Mitglied",
			"Gutes Gesundheitssystem",
		},
		considerations: []string{
			"Arbeitsmarkt in manchen Regionen schwierig",
			"Bürokratie kann kompliziert sein",
		},
	},
	{
		name: "Zypern", code: "CY", percentage: 81,
		strengths: []string{
			"Englisch weit verbreitet",
			"Günstige Steuerregelungen",
			"EU-Mitglied",
			"3.300+ Sonnenstunden",
		},
		considerations: []string{
			"Geteilte Insel (Nord-Süd)",
			"Wasserknappheit in manchen Regionen",
		},
	},
	{
		name: "Costa Rica", code: "CR", percentage: 77,
		strengths: []string{
			"Neutrales Land ohne Militär",
			"Fantastische Natur",
			"Stabile Demokratie",
			"Gutes Klima in den Bergen",
		},
		considerations: []string{
			"Zeitzonendifferenz zu Europa",
			"Visa-Prozess kann dauern",
		},
	},
	{
		name: "Uruguay", code: "UY", percentage: 73,
		strengths: []string{
			"Sehr liberal und weltoffen",
			"Neutrales Land",
			"Niedrige Kriminalität",
			"Günstige Lebenshaltung",
		},
		considerations: []string{
			"Spanisch erforderlich",
			"Atlantikküste kann windig sein",
		},
	},
}

// MockResult returns the static ranking used when no provider answers.
// Every call returns a fresh copy.
func MockResult() *Result {
	rankings := make([]CountryScore, len(mockCountries))
	for i, c := range mockCountries {
		rankings[i] = CountryScore{
			Rank:           i + 1,
			Country:        c.name,
			CountryCode:    c.code,
			Score:          scorePoints(c.percentage),
			MaxScore:       MaxScore,
			Percentage:     c.percentage,
			CriteriaScores: map[string]CriterionScore{},
			Strengths:      append([]string(nil), c.strengths...),
			Considerations: append([]string(nil), c.considerations...),
		}
	}

	return &Result{
		Success:  true,
		Rankings: rankings,
		Recommendation: Recommendation{
			TopCountry: "Portugal",
			Summary:    "Basierend auf deinen Prioritäten ist Portugal die optimale Wahl. Es bietet die perfekte Kombination aus niedrigen Kosten, exzellentem Klima und EU-Vorteilen.",
			NextSteps: []string{
				"D7 Visum (Passive Income) recherchieren",
				"Regionen vergleichen: Lissabon, Porto, Algarve, Madeira",
				"NHR-Steuerprogramm prüfen",
				"Portugiesisch-Grundkurs beginnen",
			},
			Alternative: &Alternative{
				Country:   "Spanien",
				Condition: "Wenn dir eine größere deutsche Community wichtiger ist",
				Reason:    "Spanien hat eine etabliertere deutsche Infrastruktur an der Küste",
			},
		},
		Mock: true,
	}
}
