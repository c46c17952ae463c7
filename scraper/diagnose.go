package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/propsnap/models"
)

// blockSelectors match challenge and captcha widgets served to bots.
var blockSelectors = []string{
	`iframe[src*="captcha"]`,
	`iframe[src*="challenges.cloudflare.com"]`,
	`#challenge-form`,
	`#cf-challenge-running`,
	`.g-recaptcha`,
	`.h-captcha`,
	`#px-captcha`,
}

var blockPhrases = []string{
	"access denied",
	"unusual traffic",
	"verify you are human",
	"are you a robot",
	"request blocked",
	"checking your browser",
	"pardon our interruption",
}

var emptyPhrases = []string{
	"no results found",
	"no properties found",
	"no property found",
	"no matching properties",
	"0 properties",
	"0 results",
	"we couldn't find",
	"we could not find",
}

// Diagnose classifies the HTML of a degraded capture: a bot wall, a
// legitimate empty result, or neither.
func Diagnose(html string) models.Diagnosis {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.DiagnosisUnknown
	}

	for _, sel := range blockSelectors {
		if doc.Find(sel).Length() > 0 {
			return models.DiagnosisBlocked
		}
	}

	doc.Find("script, style, noscript, template").Remove()
	text := strings.ToLower(strings.Join(strings.Fields(doc.Find("title").Text()+" "+doc.Find("body").Text()), " "))

	for _, p := range blockPhrases {
		if strings.Contains(text, p) {
			return models.DiagnosisBlocked
		}
	}
	for _, p := range emptyPhrases {
		if strings.Contains(text, p) {
			return models.DiagnosisNoResults
		}
	}
	return models.DiagnosisUnknown
}
