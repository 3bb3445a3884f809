package provisioning

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

type dateNames struct {
	from     string
	to       string
	the      string
	weekdays [7]string
	months   [12]string
}

var danishNames = dateNames{
	from:     "Fra",
	to:       "Til",
	the:      "den",
	weekdays: [7]string{"søndag", "mandag", "tirsdag", "onsdag", "torsdag", "fredag", "lørdag"},
	months: [12]string{"januar", "februar", "marts", "april", "maj", "juni",
		"juli", "august", "september", "oktober", "november", "december"},
}

var englishNames = dateNames{
	from:     "From",
	to:       "To",
	the:      "the",
	weekdays: [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
	months: [12]string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"},
}

// First entry is the fallback.
var supportedLocales = []language.Tag{language.Danish, language.English}

var localeMatcher = language.NewMatcher(supportedLocales)

var namesByLocale = []dateNames{danishNames, englishNames}

func namesFor(tag language.Tag) dateNames {
	_, idx, _ := localeMatcher.Match(tag)
	return namesByLocale[idx]
}

func (n dateNames) date(t time.Time) string {
	return fmt.Sprintf("%s %s %02d. %s %d", n.weekdays[t.Weekday()], n.the, t.Day(), n.months[t.Month()-1], t.Year())
}

// FormatValidity renders the validity window description shown on the case,
// e.g. "Fra: torsdag den 14. marts 2024<br>Til: fredag den 15. marts 2024".
func FormatValidity(w Window, tag language.Tag) string {
	n := namesFor(tag)
	return fmt.Sprintf("%s: %s<br>%s: %s", n.from, n.date(w.StartDate), n.to, n.date(w.EndDate))
}
