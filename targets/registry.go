// Package targets holds the static catalog of listing sites: where each one
// lives, how to search it, and what signals that real results have loaded.
package targets

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/use-agent/propsnap/models"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// TargetSpec describes how to reach one site's search-result view.
type TargetSpec struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`

	// DirectURL is an optional results-page template using {property},
	// {city} (slugs) and {query} (escaped search text). When set, the
	// search phase is skipped.
	DirectURL string `yaml:"direct_url,omitempty"`

	SearchInput     string `yaml:"search_input"`
	Confirm         string `yaml:"confirm,omitempty"`
	Suggestions     string `yaml:"suggestions,omitempty"`
	ReadinessMarker string `yaml:"readiness_marker"`

	// PreSearch lists locators clicked, in order and best-effort, before
	// the search input is filled.
	PreSearch []string `yaml:"pre_search,omitempty"`

	NavigateTimeout  time.Duration `yaml:"navigate_timeout,omitempty"`
	ReadinessTimeout time.Duration `yaml:"readiness_timeout,omitempty"`
}

// EntryURL is the first URL the controller navigates to for q.
func (t TargetSpec) EntryURL(q Query) string {
	if t.DirectURL != "" {
		return expandTemplate(t.DirectURL, q)
	}
	return t.BaseURL
}

// SkipsSearch reports whether the target lands directly on results.
func (t TargetSpec) SkipsSearch() bool { return t.DirectURL != "" }

// Defaults fills per-target timeouts left at zero in the catalog.
type Defaults struct {
	NavigateTimeout  time.Duration
	ReadinessTimeout time.Duration
}

// Registry is the ordered, validated set of targets.
type Registry struct {
	specs []TargetSpec
	index map[string]int
}

type catalogFile struct {
	Targets []TargetSpec `yaml:"targets"`
}

// New validates specs and applies defaults. Any invalid entry fails the
// whole registry with a CONFIGURATION_ERROR.
func New(specs []TargetSpec, d Defaults) (*Registry, error) {
	if len(specs) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeConfiguration, "target registry is empty", nil)
	}

	r := &Registry{
		specs: make([]TargetSpec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for i, spec := range specs {
		spec = normalise(spec, d)
		if err := validate(spec); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeConfiguration,
				fmt.Sprintf("target %d (%q) is invalid", i, spec.Name), err)
		}
		if _, dup := r.index[spec.Name]; dup {
			return nil, models.NewScrapeError(models.ErrCodeConfiguration,
				fmt.Sprintf("duplicate target name %q", spec.Name), nil)
		}
		r.index[spec.Name] = len(r.specs)
		r.specs = append(r.specs, spec)
	}
	return r, nil
}

// Parse reads a YAML catalog.
func Parse(data []byte, d Defaults) (*Registry, error) {
	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeConfiguration, "failed to parse target catalog", err)
	}
	return New(file.Targets, d)
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string, d Defaults) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeConfiguration, "failed to read target catalog", err)
	}
	return Parse(data, d)
}

// Default returns the built-in catalog.
func Default(d Defaults) (*Registry, error) {
	return Parse(defaultCatalog, d)
}

// List returns the targets in catalog order. The slice is a copy.
func (r *Registry) List() []TargetSpec {
	out := make([]TargetSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// Len returns the number of targets.
func (r *Registry) Len() int { return len(r.specs) }

// Select returns the named targets in catalog order, regardless of the
// order of names. An empty names list selects everything.
func (r *Registry) Select(names []string) ([]TargetSpec, error) {
	if len(names) == 0 {
		return r.List(), nil
	}
	want := make(map[int]bool, len(names))
	for _, n := range names {
		i, ok := r.index[n]
		if !ok {
			return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
				fmt.Sprintf("unknown target %q", n), nil)
		}
		want[i] = true
	}
	out := make([]TargetSpec, 0, len(want))
	for i, spec := range r.specs {
		if want[i] {
			out = append(out, spec)
		}
	}
	return out, nil
}

func normalise(spec TargetSpec, d Defaults) TargetSpec {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.BaseURL = strings.TrimSpace(spec.BaseURL)
	spec.DirectURL = strings.TrimSpace(spec.DirectURL)
	if spec.NavigateTimeout <= 0 {
		spec.NavigateTimeout = d.NavigateTimeout
	}
	if spec.ReadinessTimeout <= 0 {
		spec.ReadinessTimeout = d.ReadinessTimeout
	}
	if len(spec.PreSearch) > 0 {
		spec.PreSearch = append([]string(nil), spec.PreSearch...)
	}
	return spec
}

func validate(spec TargetSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := validateURL(spec.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if spec.DirectURL != "" {
		if !hasPlaceholder(spec.DirectURL) {
			return fmt.Errorf("direct_url has no {property}, {city} or {query} placeholder")
		}
		if err := validateURL(expandTemplate(spec.DirectURL, Query{Property: "p", City: "c"})); err != nil {
			return fmt.Errorf("direct_url: %w", err)
		}
	}

	required := map[string]string{
		"search_input":     spec.SearchInput,
		"readiness_marker": spec.ReadinessMarker,
	}
	for field, raw := range required {
		if err := ParseLocator(raw).Validate(); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	optional := map[string]string{
		"confirm":     spec.Confirm,
		"suggestions": spec.Suggestions,
	}
	for field, raw := range optional {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if err := ParseLocator(raw).Validate(); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	for i, raw := range spec.PreSearch {
		if err := ParseLocator(raw).Validate(); err != nil {
			return fmt.Errorf("pre_search[%d]: %w", i, err)
		}
	}

	if spec.NavigateTimeout <= 0 || spec.ReadinessTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
