package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func entry(server, name string) ToolEntry {
	return ToolEntry{ServerID: server, Name: name}
}

func TestToolFilter_Matches(t *testing.T) {
	cases := []struct {
		name   string
		filter ToolFilter
		entry  ToolEntry
		want   bool
	}{
		{"all matches everything", All(), entry("s1", "read_file"), true},
		{"none matches nothing", None(), entry("s1", "read_file"), false},
		{"servers matches listed id", Servers("s1", "s2"), entry("s1", "x"), true},
		{"servers rejects unlisted id", Servers("s1"), entry("s2", "x"), false},
		{"tools matches bare name", Tools("read_file"), entry("s1", "read_file"), true},
		{"toolIDs matches qualified id", ToolIDs("s1.read_file"), entry("s1", "read_file"), true},
		{"toolIDs rejects mismatched server", ToolIDs("s2.read_file"), entry("s1", "read_file"), false},
		{"pattern matches read prefix", Pattern("^(read|get|list)_"), entry("s1", "read_file"), true},
		{"pattern rejects non-matching name", Pattern("^(read|get|list)_"), entry("s1", "write_file"), false},
		{"and requires every sub-filter", And(Servers("s1"), Pattern("^read_")), entry("s1", "read_file"), true},
		{"and rejects on first failing sub-filter", And(Servers("s1"), Pattern("^read_")), entry("s1", "write_file"), false},
		{"or requires any sub-filter", Or(Tools("a"), Tools("b")), entry("s1", "b"), true},
		{"not inverts", Not(Tools("a")), entry("s1", "b"), true},
		{"not rejects the wrapped match", Not(Tools("a")), entry("s1", "a"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.filter.Matches(tc.entry))
		})
	}
}

func TestToolFilter_Apply(t *testing.T) {
	entries := []ToolEntry{entry("s1", "read_x"), entry("s1", "write_x"), entry("s2", "read_y")}
	got := ModeReadOnly.Apply(entries)
	require.Len(t, got, 2)
	require.Equal(t, "read_x", got[0].Name)
	require.Equal(t, "read_y", got[1].Name)
}

func TestToolFilter_CodableRoundTrip(t *testing.T) {
	filters := []ToolFilter{
		All(),
		None(),
		Servers("a", "b"),
		Tools("x", "y"),
		ToolIDs("a.x", "b.y"),
		Pattern("^read_"),
		And(Servers("a"), Tools("x")),
		Or(Tools("x"), Tools("y")),
		Not(Tools("x")),
	}
	for _, f := range filters {
		data, err := json.Marshal(f)
		require.NoError(t, err)

		var back ToolFilter
		require.NoError(t, json.Unmarshal(data, &back))

		probe := entry("a", "x")
		require.Equal(t, f.Matches(probe), back.Matches(probe))

		data2, err := json.Marshal(back)
		require.NoError(t, err)
		require.JSONEq(t, string(data), string(data2))
	}
}

func TestToolFilter_UnmarshalUnknownKind(t *testing.T) {
	var f ToolFilter
	err := json.Unmarshal([]byte(`{"kind":"bogus"}`), &f)
	require.Error(t, err)
}
