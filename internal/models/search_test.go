package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchOptions_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   SearchOptions
		want SearchOptions
	}{
		{"unset", SearchOptions{}, SearchOptions{Limit: 5}},
		{"negative limit", SearchOptions{Limit: -3}, SearchOptions{Limit: 5}},
		{"kept", SearchOptions{Limit: 7, MinScore: 0.4}, SearchOptions{Limit: 7, MinScore: 0.4}},
		{"large limit kept", SearchOptions{Limit: 500}, SearchOptions{Limit: 500}},
		{"negative score", SearchOptions{Limit: 2, MinScore: -1}, SearchOptions{Limit: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestAnalysis_DocumentText(t *testing.T) {
	a := Analysis{
		Theme:              "思乡",
		CoreIdea:           "月夜怀人",
		ApplicableScenario: "中秋",
		ModernSignificance: "游子情怀",
	}

	assert.Equal(t, "主题：思乡\n核心思想：月夜怀人\n适用场景：中秋\n现代意义：游子情怀", a.DocumentText())
	assert.True(t, a.Complete())

	a.CoreIdea = ""
	assert.False(t, a.Complete())
}

func TestSearchResult_JSONShape(t *testing.T) {
	r := SearchResult{
		Poem: Poem{
			ID:      "42",
			Title:   "静夜思",
			Author:  "李白",
			Content: "床前明月光",
			Analysis: Analysis{
				Theme: "思乡",
			},
		},
		Score: 0.91,
	}

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "42", decoded["id"])
	assert.Equal(t, 0.91, decoded["score"])
	analysis, ok := decoded["analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "思乡", analysis["theme"])
	assert.Contains(t, analysis, "core_idea")
}

func TestAdminSearchRequest_DecodesCamelCaseOptions(t *testing.T) {
	var req AdminSearchRequest
	require.NoError(t, json.Unmarshal([]byte(`{"query":"雨","options":{"limit":3,"minScore":0.5},"debug":true}`), &req))

	assert.Equal(t, "雨", req.Query)
	assert.Equal(t, 3, req.Options.Limit)
	assert.Equal(t, 0.5, req.Options.MinScore)
	assert.True(t, req.Debug)
}
