package env

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		in          string
		name, value string
		ok          bool
	}{
		{in: "PORT=8000", name: "PORT", value: "8000", ok: true},
		{in: "URL=http://127.0.0.1:5050", name: "URL", value: "http://127.0.0.1:5050", ok: true},
		{in: "EMPTY=", name: "EMPTY", value: "", ok: true},
		{in: "=weird", ok: false},
		{in: "novalue", ok: false},
	}

	for _, tc := range tests {
		name, value, ok := Split(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.name, name, tc.in)
		assert.Equal(t, tc.value, value, tc.in)
	}
}

func TestFromSliceAndToSlice(t *testing.T) {
	e := FromSlice([]string{"B=2", "A=1", "ignored"})

	if diff := cmp.Diff([]string{"A=1", "B=2"}, e.ToSlice()); diff != "" {
		t.Errorf("ToSlice() diff (-want +got):\n%s", diff)
	}
}

func TestSetDefault(t *testing.T) {
	e := New()

	assert.Equal(t, "http://127.0.0.1:5050", e.SetDefault("AVAILABILITY_BACKEND_URL", "http://127.0.0.1:5050"))

	e.Set("AVAILABILITY_BACKEND_URL", "http://example.com:9999")
	assert.Equal(t, "http://example.com:9999", e.SetDefault("AVAILABILITY_BACKEND_URL", "http://127.0.0.1:5050"))

	// Empty values are treated as unset
	e.Set("PORT", "")
	assert.Equal(t, "8000", e.SetDefault("PORT", "8000"))
}

func TestMergeAndCopy(t *testing.T) {
	a := FromMap(map[string]string{"A": "1", "B": "2"})
	b := FromMap(map[string]string{"B": "3", "C": "4"})

	c := a.Copy()
	c.Merge(b)

	assert.Equal(t, []string{"A=1", "B=3", "C=4"}, c.ToSlice())
	// original unchanged
	assert.Equal(t, []string{"A=1", "B=2"}, a.ToSlice())
}

func TestGetOrDefault(t *testing.T) {
	e := FromMap(map[string]string{"PORT": "9000", "BLANK": "  "})

	assert.Equal(t, "9000", e.GetOrDefault("PORT", "8000"))
	assert.Equal(t, "8000", e.GetOrDefault("MISSING", "8000"))
	assert.Equal(t, "8000", e.GetOrDefault("BLANK", "8000"))
}
