package entry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintNormalizesLineEndings(t *testing.T) {
	lf := Fingerprint([]byte("Title: x\n\nbody\n"))
	require.Equal(t, lf, Fingerprint([]byte("Title: x\r\n\r\nbody\r\n")))
	require.Equal(t, lf, Fingerprint([]byte("\xEF\xBB\xBFTitle: x\n\nbody\n")))
	require.Equal(t, lf, Fingerprint([]byte("Title: x\r\rbody\r")))
	require.NotEqual(t, lf, Fingerprint([]byte("Title: x\n\nbody \n")))
	require.Len(t, lf, 64)
}

func TestMetadataAccessors(t *testing.T) {
	m := Metadata{
		"tags":   String("go, web ,, index"),
		"list":   List{String("a"), Number(2), String(" b ")},
		"draft":  String("Yes"),
		"page":   Bool(false),
		"weight": Number(1.5),
		"nested": Map{"k": String("v")},
	}

	require.Equal(t, []string{"go", "web", "index"}, m.Strings("tags"))
	require.Equal(t, []string{"a", "b"}, m.Strings("list"))
	require.True(t, m.Bool("draft"))
	require.False(t, m.Bool("page"))
	require.False(t, m.Bool("missing"))

	s, ok := m.String("weight")
	require.True(t, ok)
	require.Equal(t, "1.5", s)

	_, ok = m.String("nested")
	require.False(t, ok)
	require.Equal(t, []string{"draft", "list", "nested", "page", "tags", "weight"}, m.Keys())
}

func TestMetadataJSON(t *testing.T) {
	in := Entry{
		ID:   "/a.md",
		Path: "/a.md",
		Metadata: Metadata{
			"sources": List{String("/album+/one.md"), String("/album+/two.md")},
			"extra":   Map{"n": Number(3), "ok": Bool(true)},
		},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Entry
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, in.Metadata, out.Metadata)
	require.True(t, out.Aggregate())
}

func TestValueOfRejectsUnknown(t *testing.T) {
	_, err := ValueOf(struct{}{})
	require.Error(t, err)
}

func TestVisible(t *testing.T) {
	tests := []struct {
		name string
		e    Entry
		want bool
	}{
		{"post", Entry{}, true},
		{"deleted", Entry{Deleted: true}, false},
		{"draft", Entry{Draft: true}, false},
		{"scheduled", Entry{Scheduled: true}, false},
		{"page", Entry{Page: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.e.Visible())
		})
	}
}
