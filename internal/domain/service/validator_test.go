package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wolfitem/ai-briefing/internal/domain/model"
)

func TestValidateSpecs(t *testing.T) {
	v := NewValidator()
	specs := []model.SourceSpec{
		{ID: "bbc", Kind: model.KindNews, Target: "http://feeds.bbci.co.uk/news/rss.xml"},
		{ID: "ft", Kind: model.KindNews, Target: "https://www.ft.com/?format=rss"},
		{ID: "local", Kind: model.KindNews, Target: "http://127.0.0.1/feed"},
		{ID: "nyc", Kind: model.KindWeather, Target: "40.7128,-74.0060"},
		{ID: "mars", Kind: model.KindWeather, Target: "140,10"},
		{ID: "eurusd", Kind: model.KindMarket, Target: "EUR/USD"},
		{ID: "topic", Kind: model.KindAlert, Target: `"Machine Learning"`},
		{ID: "empty", Kind: model.KindAlert, Target: " "},
		{ID: "odd", Kind: "podcast", Target: "x"},
	}

	valid, invalid, err := v.ValidateSpecs(specs)
	require.NoError(t, err)

	ids := make([]string, 0, len(valid))
	for _, s := range valid {
		ids = append(ids, s.ID)
	}
	require.Equal(t, []string{"bbc", "ft", "nyc", "eurusd", "topic"}, ids)
	require.Len(t, invalid, 4)

	var permanent *model.PermanentError
	require.True(t, errors.As(invalid["local"], &permanent))
}

func TestValidateSpecs_DuplicateID(t *testing.T) {
	_, _, err := NewValidator().ValidateSpecs([]model.SourceSpec{
		{ID: "a", Kind: model.KindAlert, Target: "x"},
		{ID: "a", Kind: model.KindAlert, Target: "y"},
	})
	require.Error(t, err)
}

func TestValidateURL_AllowPrivateHosts(t *testing.T) {
	v := &Validator{AllowPrivateHosts: true}
	require.NoError(t, v.ValidateURL("http://127.0.0.1:8080/feed"))
	require.Error(t, v.ValidateURL("ftp://example.com/feed"))
}

func TestValidateFilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subs.opml")
	require.NoError(t, os.WriteFile(path, []byte("<opml/>"), 0644))

	v := NewValidator()
	require.NoError(t, v.ValidateFilePath(path))
	require.Error(t, v.ValidateFilePath(filepath.Join(dir, "subs.xml")))
	require.Error(t, v.ValidateFilePath(filepath.Join(dir, "missing.opml")))
}

func TestParseCoordinates(t *testing.T) {
	lat, lon, err := ParseCoordinates("51.5074, -0.1278")
	require.NoError(t, err)
	require.InDelta(t, 51.5074, lat, 1e-9)
	require.InDelta(t, -0.1278, lon, 1e-9)

	_, _, err = ParseCoordinates("51.5")
	require.Error(t, err)
}
