package targets

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/use-agent/propsnap/models"
)

// MaxQueryField bounds each free-text query field.
const MaxQueryField = 120

// Query is the caller's search: a property name and a city.
type Query struct {
	Property string
	City     string
}

// NewQuery trims and validates both fields.
func NewQuery(property, city string) (Query, error) {
	q := Query{
		Property: strings.Join(strings.Fields(property), " "),
		City:     strings.Join(strings.Fields(city), " "),
	}
	switch {
	case q.Property == "":
		return Query{}, models.NewScrapeError(models.ErrCodeInvalidInput, "property is required", nil)
	case q.City == "":
		return Query{}, models.NewScrapeError(models.ErrCodeInvalidInput, "city is required", nil)
	case len(q.Property) > MaxQueryField || len(q.City) > MaxQueryField:
		return Query{}, models.NewScrapeError(models.ErrCodeInvalidInput, "property and city must be at most 120 characters", nil)
	}
	return q, nil
}

// Text is the string typed into a site's search box.
func (q Query) Text() string {
	return q.Property + " " + q.City
}

// Slug lowercases s and joins its alphanumeric runs with '-'.
func Slug(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// expandTemplate fills the {property}, {city} and {query} placeholders.
func expandTemplate(tmpl string, q Query) string {
	return strings.NewReplacer(
		"{property}", url.PathEscape(Slug(q.Property)),
		"{city}", url.PathEscape(Slug(q.City)),
		"{query}", url.QueryEscape(q.Text()),
	).Replace(tmpl)
}

func hasPlaceholder(tmpl string) bool {
	return strings.Contains(tmpl, "{property}") ||
		strings.Contains(tmpl, "{city}") ||
		strings.Contains(tmpl, "{query}")
}
