package targets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/propsnap/models"
)

var testDefaults = Defaults{NavigateTimeout: 10 * time.Second, ReadinessTimeout: 6 * time.Second}

func validSpec(name string) TargetSpec {
	return TargetSpec{
		Name:            name,
		BaseURL:         "https://" + name + ".example/",
		SearchInput:     "input#q",
		ReadinessMarker: ".card",
	}
}

func TestDefault_Catalog(t *testing.T) {
	r, err := Default(testDefaults)
	require.NoError(t, err)

	specs := r.List()
	require.Len(t, specs, 2)
	assert.Equal(t, "NoBroker", specs[0].Name)
	assert.Equal(t, "MagicBricks", specs[1].Name)
	assert.Equal(t, []string{"text=Rent"}, specs[0].PreSearch)
	assert.Equal(t, 15*time.Second, specs[0].ReadinessTimeout)
	assert.Equal(t, "text=₹", specs[0].ReadinessMarker)
}

func TestNew_RejectsEmptyRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TargetSpec)
	}{
		{"empty name", func(s *TargetSpec) { s.Name = "  " }},
		{"empty base url", func(s *TargetSpec) { s.BaseURL = "" }},
		{"relative base url", func(s *TargetSpec) { s.BaseURL = "/search" }},
		{"empty search input", func(s *TargetSpec) { s.SearchInput = "" }},
		{"empty readiness marker", func(s *TargetSpec) { s.ReadinessMarker = "" }},
		{"empty text locator", func(s *TargetSpec) { s.ReadinessMarker = "text=" }},
		{"invalid css", func(s *TargetSpec) { s.SearchInput = "input[[" }},
		{"invalid confirm", func(s *TargetSpec) { s.Confirm = "button[" }},
		{"invalid pre-search", func(s *TargetSpec) { s.PreSearch = []string{""} }},
		{"direct url without placeholder", func(s *TargetSpec) { s.DirectURL = "https://x.example/list" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec("a")
			tt.mutate(&spec)

			_, err := New([]TargetSpec{spec}, testDefaults)
			require.Error(t, err)
			assert.True(t, models.IsCode(err, models.ErrCodeConfiguration), "got %v", err)
		})
	}
}

func TestNew_RejectsDuplicatesAndEmpty(t *testing.T) {
	_, err := New([]TargetSpec{validSpec("a"), validSpec("a")}, testDefaults)
	assert.True(t, models.IsCode(err, models.ErrCodeConfiguration))

	_, err = New(nil, testDefaults)
	assert.True(t, models.IsCode(err, models.ErrCodeConfiguration))
}

func TestNew_AppliesTimeoutDefaults(t *testing.T) {
	spec := validSpec("a")
	spec.ReadinessTimeout = 2 * time.Second

	r, err := New([]TargetSpec{spec}, testDefaults)
	require.NoError(t, err)

	got := r.List()[0]
	assert.Equal(t, 10*time.Second, got.NavigateTimeout)
	assert.Equal(t, 2*time.Second, got.ReadinessTimeout)
}

func TestList_ReturnsCopy(t *testing.T) {
	r, err := New([]TargetSpec{validSpec("a"), validSpec("b")}, testDefaults)
	require.NoError(t, err)

	specs := r.List()
	specs[0].Name = "mutated"
	assert.Equal(t, "a", r.List()[0].Name)
}

func TestSelect(t *testing.T) {
	r, err := New([]TargetSpec{validSpec("a"), validSpec("b"), validSpec("c")}, testDefaults)
	require.NoError(t, err)

	got, err := r.Select([]string{"c", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "c", got[1].Name)

	all, err := r.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = r.Select([]string{"zzz"})
	assert.True(t, models.IsCode(err, models.ErrCodeInvalidInput))
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	data := []byte(`
targets:
  - name: a
    base_url: https://a.example/
    search_input: input
    readiness_marker: .x
    wait_for: .typo
`)
	_, err := Parse(data, testDefaults)
	assert.True(t, models.IsCode(err, models.ErrCodeConfiguration))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	data := []byte(`
targets:
  - name: Direct
    base_url: https://d.example/
    direct_url: https://d.example/{city}/{property}
    search_input: input
    readiness_marker: text=Results
    navigate_timeout: 3s
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	r, err := LoadFile(path, testDefaults)
	require.NoError(t, err)

	spec := r.List()[0]
	assert.Equal(t, 3*time.Second, spec.NavigateTimeout)
	assert.True(t, spec.SkipsSearch())
	assert.Equal(t, "https://d.example/new-delhi/dlf-park-place",
		spec.EntryURL(Query{Property: "DLF Park Place", City: "New Delhi"}))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), testDefaults)
	assert.True(t, models.IsCode(err, models.ErrCodeConfiguration))
}
