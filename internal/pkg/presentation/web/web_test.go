package web

import (
	"bytes"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahought/DisasterSoundManager/internal/pkg/dashboard"
)

func TestNormalizeTab(t *testing.T) {
	assert.Equal(t, TabMap, NormalizeTab("map"))
	assert.Equal(t, TabSettings, NormalizeTab("settings"))
	assert.Equal(t, TabOverview, NormalizeTab(""))
	assert.Equal(t, TabOverview, NormalizeTab("admin"))
}

func TestThatLoginPageShowsMessage(t *testing.T) {
	pages, err := NewPages()
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, pages.Login(buf, "op@example.com", "Invalid email or password"))

	assert.Contains(t, buf.String(), "Invalid email or password")
	assert.Contains(t, buf.String(), `value="op@example.com"`)
}

func TestThatEveryTabRendersWithoutViews(t *testing.T) {
	pages, err := NewPages()
	require.NoError(t, err)

	for _, tab := range []string{TabOverview, TabMap, TabSettings} {
		buf := &bytes.Buffer{}
		require.NoError(t, pages.Dashboard(buf, tab, nil), tab)
		assert.Contains(t, buf.String(), `data-tab="`+tab+`"`)
	}
}

func TestThatStaticAssetsAreEmbedded(t *testing.T) {
	_, err := fs.Stat(Static(), "dsm.js")
	assert.NoError(t, err)
}

func TestThatChartMetersAreScaledToTheBucketTotal(t *testing.T) {
	pages, err := NewPages()
	require.NoError(t, err)

	buckets := []dashboard.Bucket{{Name: "SOS", Value: 120}, {Name: "Scream", Value: 30}}
	assert.Equal(t, 150, bucketTotal(buckets))

	page := dashboardPage{Tab: TabOverview, Buckets: buckets, BucketTotal: bucketTotal(buckets)}

	buf := &bytes.Buffer{}
	require.NoError(t, pages.templates.ExecuteTemplate(buf, "dashboard.html", page))

	assert.Contains(t, buf.String(), `<meter min="0" max="150" value="120">`)
	assert.Contains(t, buf.String(), `<meter min="0" max="150" value="30">`)
}

func TestThatOverviewHasALocationPicker(t *testing.T) {
	pages, err := NewPages()
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, pages.Dashboard(buf, TabOverview, nil))

	assert.Contains(t, buf.String(), `id="picker"`)
	assert.Contains(t, buf.String(), `name="latitude"`)
}
