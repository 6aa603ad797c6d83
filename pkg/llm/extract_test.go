package llm

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractObject_StrictJSON(t *testing.T) {
	obj, err := ExtractObject(`{"sql_query": "SELECT 1", "query_type": "point"}`)
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", obj["sql_query"])
	require.Equal(t, "point", obj["query_type"])
}

func TestExtractObject_FencedJSON(t *testing.T) {
	text := "```json\n{\"sql_query\": \"SELECT * FROM mods;\", \"query_type\": \"point\"}\n```"
	obj, err := ExtractObject(text)
	require.NoError(t, err)
	require.Equal(t, "SELECT * FROM mods;", obj["sql_query"])
}

func TestExtractObject_BareFence(t *testing.T) {
	text := "```\n{\"description\": \"all mines\"}\n```"
	obj, err := ExtractObject(text)
	require.NoError(t, err)
	require.Equal(t, "all mines", obj["description"])
}

func TestExtractObject_SurroundingProse(t *testing.T) {
	text := "Sure! Here is the query you asked for:\n{\"sql_query\": \"SELECT gid FROM mods\"}\nLet me know if you need anything else."
	obj, err := ExtractObject(text)
	require.NoError(t, err)
	require.Equal(t, "SELECT gid FROM mods", obj["sql_query"])
}

func TestExtractObject_TrailingCommas(t *testing.T) {
	text := `{"sql_query": "SELECT 1", "tables_used": ["mods",],}`
	obj, err := ExtractObject(text)
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", obj["sql_query"])

	tables, ok := obj["tables_used"].([]any)
	require.True(t, ok)
	require.Equal(t, []any{"mods"}, tables)
}

func TestExtractObject_NestedValues(t *testing.T) {
	text := `Reasoning first. {"a": {"b": "c"}, "sql_query": "SELECT '}' FROM mods"} trailing.`
	obj, err := ExtractObject(text)
	require.NoError(t, err)
	require.Equal(t, "SELECT '}' FROM mods", obj["sql_query"])
}

func TestExtractObject_Malformed(t *testing.T) {
	longGarbage := strings.Repeat("not json at all ", 40)
	_, err := ExtractObject(longGarbage)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformedResponse))

	// Diagnostic snippet is capped at 200 chars plus the ellipsis.
	msg := strings.TrimPrefix(err.Error(), ErrMalformedResponse.Error()+": ")
	require.LessOrEqual(t, len(msg), 203)
}

func TestExtractObject_ShallowObjectRecovery(t *testing.T) {
	// Outer braces are broken, but a parsable object hides inside.
	text := `{{oops "reasoning": x} {"sql_query": "SELECT gid FROM mods", "query_type": "point"}`
	obj, err := ExtractObject(text)
	require.NoError(t, err)
	require.Equal(t, "SELECT gid FROM mods", obj["sql_query"])
}
