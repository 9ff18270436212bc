package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// SystemPrompt frames the model as an emigration advisor and fixes the scoring scheme.
var SystemPrompt = fmt.Sprintf(`Du bist ein erfahrener Auswanderungs-Berater mit 20 Jahren Erfahrung.
Du analysierst die Antworten eines Nutzers auf %[1]d Kriterien und erstellst ein personalisiertes Länder-Ranking.

Für jedes Kriterium gibt der Nutzer eine Gewichtung von 1-5 an (1=egal, 5=sehr wichtig).

Du bewertest jedes Land für jedes Kriterium mit:
- ++ (2 Punkte) = Sehr gut
- o (1 Punkt) = Mittel
- -- (0 Punkte) = Schlecht

Der Gesamtscore eines Landes = Summe(Kriterium_Score × Nutzer_Gewichtung)
Maximaler Score = %[2]d (%[1]d Kriterien × 2 Punkte × 5 Gewichtung)

Antworte immer auf Deutsch und in einem freundlichen, hilfreichen Ton.`, CriteriaCount, MaxScore)

const responseTemplate = `Antworte im JSON-Format:
{
  "rankings": [
    {
      "rank": 1,
      "country": "Portugal",
      "countryCode": "PT",
      "percentage": 92,
      "strengths": ["Niedrige Kosten", "Gutes Klima"],
      "considerations": ["Portugiesisch lernen"]
    }
  ],
  "recommendation": {
    "topCountry": "Portugal",
    "summary": "Begründung...",
    "nextSteps": ["Schritt 1", "Schritt 2"]
  }
}`

// BuildPrompt renders the user prompt. Ratings are listed in criterion id order.
func BuildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Analysiere folgendes Nutzerprofil für die Auswanderung:\n\n## Nutzer-Profil:\n")

	var countries []string
	if pre := req.PreAnalysis; pre != nil {
		countries = pre.CountriesOfInterest
		if len(countries) > 0 {
			fmt.Fprintf(&b, "- Interessante Länder: %s\n", strings.Join(countries, ", "))
		}
		if pre.SpecialWishes != "" {
			fmt.Fprintf(&b, "- Besondere Wünsche: %s\n", pre.SpecialWishes)
		}
	}

	if p := req.UserProfile; p != nil {
		writeFact(&b, "Budget", p.Budget)
		writeFact(&b, "Beruf", p.Profession)
		writeFact(&b, "Familie", p.FamilyStatus)
		writeFact(&b, "Staatsbürgerschaft", p.Citizenship)
		writeFact(&b, "Sprachen", strings.Join(p.Languages, ", "))
		writeFact(&b, "Klima-Präferenz", p.ClimatePref)
		writeFact(&b, "Natur-Präferenz", p.NaturePref)
	}

	b.WriteString("\n## Kriterien-Gewichtungen (1=egal, 5=sehr wichtig):\n")

	ids := make([]string, 0, len(req.CriteriaRatings))
	for id := range req.CriteriaRatings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "- %s: %d\n", id, req.CriteriaRatings[id])
	}

	b.WriteString("\n## Aufgabe:\nErstelle ein Ranking der Top 5 Auswanderungsländer für diesen Nutzer.\n")
	if len(countries) > 0 {
		fmt.Fprintf(&b, "Berücksichtige besonders die genannten Länder: %s.", strings.Join(countries, ", "))
	}
	b.WriteString("\n\n")
	b.WriteString(responseTemplate)

	return b.String()
}

func writeFact(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "- %s: %s\n", label, value)
	}
}
