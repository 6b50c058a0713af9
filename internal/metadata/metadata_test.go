package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decklens/decklens/internal/ocrengine"
)

func toks(texts ...string) []ocrengine.Token {
	out := make([]ocrengine.Token, len(texts))
	for i, t := range texts {
		out[i] = ocrengine.Token{Text: t, Confidence: 0.9}
	}
	return out
}

func TestParseFullBand(t *testing.T) {
	got := Parse(toks("排名 92", "第一赛季区域公开赛-杭州赛区", "2025-11-01"))

	require.NotNil(t, got.Placement)
	assert.Equal(t, 92, *got.Placement)
	require.NotNil(t, got.Event)
	assert.Equal(t, "第一赛季区域公开赛-杭州赛区", *got.Event)
	require.NotNil(t, got.Date)
	assert.Equal(t, "2025-11-01", *got.Date)
}

func TestParseEmptyBand(t *testing.T) {
	got := Parse(nil)
	assert.Nil(t, got.Placement)
	assert.Nil(t, got.Event)
	assert.Nil(t, got.Date)
}

func TestPlacementHashMarker(t *testing.T) {
	got := Parse(toks("#7"))
	require.NotNil(t, got.Placement)
	assert.Equal(t, 7, *got.Placement)
}

func TestPlacementStandaloneFallback(t *testing.T) {
	got := Parse(toks("some text", "92"))
	require.NotNil(t, got.Placement)
	assert.Equal(t, 92, *got.Placement)
}

func TestPlacementRejectsLongNumbers(t *testing.T) {
	got := Parse(toks("20251101"))
	assert.Nil(t, got.Placement)
}

func TestPlacementKeywordBeatsFallback(t *testing.T) {
	got := Parse(toks("3", "排名 92"))
	require.NotNil(t, got.Placement)
	assert.Equal(t, 92, *got.Placement)
}

func TestEventFirstMatchWins(t *testing.T) {
	got := Parse(toks("上海赛区", "杭州赛区"))
	require.NotNil(t, got.Event)
	assert.Equal(t, "上海赛区", *got.Event)
}

func TestDateSeparatorNormalized(t *testing.T) {
	got := Parse(toks("2025/11/01"))
	require.NotNil(t, got.Date)
	assert.Equal(t, "2025-11-01", *got.Date)

	got = Parse(toks("日期 2025-03-09 场次"))
	require.NotNil(t, got.Date)
	assert.Equal(t, "2025-03-09", *got.Date)
}

func TestFieldsIndependent(t *testing.T) {
	got := Parse(toks("2025-11-01"))
	assert.Nil(t, got.Placement)
	assert.Nil(t, got.Event)
	require.NotNil(t, got.Date)
}
