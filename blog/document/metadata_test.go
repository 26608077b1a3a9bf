package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMetadata(t *testing.T, front string) *Metadata {
	t.Helper()
	meta, err := decodeMetadata([]byte(front))
	require.NoError(t, err)
	return meta
}

func TestMetadata_Time(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
		ok    bool
	}{
		{"RFC3339", "2024-05-06T07:08:09Z", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), true},
		{"With offset", "2024-05-06T07:08:09+02:00", time.Date(2024, 5, 6, 5, 8, 9, 0, time.UTC), true},
		{"Space separated", "2024-05-06 07:08:09", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), true},
		{"Date only", "2024-05-06", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), true},
		{"Long form", "May 6, 2024", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), true},
		{"Garbage", "next tuesday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := mustMetadata(t, "date: "+tt.value+"\n")
			got, ok := meta.Time("date")
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "Time() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetadata_Strings(t *testing.T) {
	tests := []struct {
		name  string
		front string
		want  []string
	}{
		{"Scalar", "hashtags: go\n", []string{"go"}},
		{"Flow sequence", "hashtags: [go, web]\n", []string{"go", "web"}},
		{"Nested sequences", "hashtags:\n  - go\n  - [web, [indieweb]]\n", []string{"go", "web", "indieweb"}},
		{"Null entries skipped", "hashtags: [go, ~]\n", []string{"go"}},
		{"Missing", "title: x\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := mustMetadata(t, tt.front)
			assert.Equal(t, tt.want, meta.Strings("hashtags"))
		})
	}
}

func TestMetadata_Bool(t *testing.T) {
	meta := mustMetadata(t, "a: true\nb: \"false\"\nc: maybe\n")

	v, ok := meta.Bool("a")
	assert.True(t, ok)
	assert.True(t, v)

	v, ok = meta.Bool("b")
	assert.True(t, ok)
	assert.False(t, v)

	_, ok = meta.Bool("c")
	assert.False(t, ok)

	_, ok = meta.Bool("missing")
	assert.False(t, ok)
}

func TestMetadata_String(t *testing.T) {
	meta := mustMetadata(t, "id: 0a1b2c\nempty: \"\"\nnothing: ~\nlist: [a]\n")

	id, ok := meta.String("id")
	assert.True(t, ok)
	assert.Equal(t, "0a1b2c", id)

	for _, key := range []string{"empty", "nothing", "list", "missing"} {
		_, ok := meta.String(key)
		assert.False(t, ok, key)
	}
}

func TestMetadata_SetReplacesInPlace(t *testing.T) {
	meta := mustMetadata(t, "title: a\npublished: false # set by server\nextra: 1\n")

	require.NoError(t, meta.Set("published", true))

	assert.Equal(t, []string{"title", "published", "extra"}, meta.Keys())
	v, ok := meta.Bool("published")
	assert.True(t, ok)
	assert.True(t, v)

	out, err := meta.marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "published: true # set by server")
}

func TestMetadata_Fields(t *testing.T) {
	meta := mustMetadata(t, "title: a\ncount: 3\ntags: [x]\n")

	fields, err := meta.Fields()
	require.NoError(t, err)
	assert.Equal(t, "a", fields["title"])
	assert.Equal(t, 3, fields["count"])
	assert.Equal(t, []any{"x"}, fields["tags"])
}
