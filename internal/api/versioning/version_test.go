package versioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    Version
		wantErr bool
	}{
		{raw: "1", want: Version{1, 0}},
		{raw: "1.0", want: Version{1, 0}},
		{raw: "v2", want: Version{2, 0}},
		{raw: "V2.1", want: Version{2, 1}},
		{raw: " 3.0 ", want: Version{3, 0}},
		{raw: "v99", want: Version{99, 0}},
		{raw: "", wantErr: true},
		{raw: "v", wantErr: true},
		{raw: "1.", wantErr: true},
		{raw: "one", wantErr: true},
		{raw: "1.0.0", wantErr: true},
		{raw: "-1", wantErr: true},
		{raw: "vv1", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := Parse(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestVersionFormatting(t *testing.T) {
	v := Version{Major: 2, Minor: 0}
	assert.Equal(t, "2.0", v.String())
	assert.Equal(t, "v2.0", v.GroupName())
	assert.True(t, Version{1, 9}.Less(Version{2, 0}))
	assert.False(t, Version{2, 0}.Less(Version{2, 0}))
}

func TestNewSet(t *testing.T) {
	set, err := NewSet([]string{"2.0", "1.0", "1.1"}, []string{"1.0"}, "1.0")
	require.NoError(t, err)

	assert.Equal(t, []string{"v1.0", "v1.1", "v2.0"}, set.GroupNames())
	assert.Equal(t, Version{1, 0}, set.Default().Version)
	assert.True(t, set.Default().Deprecated)
	assert.Equal(t, "1.1, 2.0", set.SupportedHeader())
	assert.Equal(t, "1.0", set.DeprecatedHeader())

	d, ok := set.LookupGroup("V2.0")
	assert.True(t, ok)
	assert.Equal(t, Version{2, 0}, d.Version)

	_, ok = set.Lookup(Version{99, 0})
	assert.False(t, ok)

	// Callers cannot mutate the set through the returned slice.
	ds := set.Descriptors()
	ds[0].Deprecated = false
	assert.True(t, set.Descriptors()[0].Deprecated)
}

func TestNewSetRejectsInconsistentConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		supported  []string
		deprecated []string
		def        string
	}{
		{"empty", nil, nil, "1.0"},
		{"malformed", []string{"one"}, nil, "1.0"},
		{"duplicate", []string{"1", "1.0"}, nil, "1.0"},
		{"default not supported", []string{"1.0"}, nil, "2.0"},
		{"deprecated not supported", []string{"1.0"}, []string{"0.9"}, "1.0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSet(tc.supported, tc.deprecated, tc.def)
			assert.ErrorIs(t, err, ErrInvalidVersionSet)
		})
	}
}
