package xpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

func TestParseIndexExpression(t *testing.T) {
	tests := []struct {
		expr string
		want IndexExpression
	}{
		{"/testpackage/station/station/lat", IndexExpression{"testpackage", "station", "/station/lat", ""}},
		{"/testpackage/*/station/XY/@id", IndexExpression{"testpackage", "*", "/station/XY/@id", ""}},
		{"/testpackage/station/station", IndexExpression{"testpackage", "station", "/station", ""}},
		{"/testpackage/station/station/XY#paramXY", IndexExpression{"testpackage", "station", "/station/XY/paramXY", "/station/XY"}},
		{"/testpackage/station/station/XY#X/@unit", IndexExpression{"testpackage", "station", "/station/XY/X/@unit", "/station/XY"}},
		{"  /pkg/rt/ns:root/ns:node/  ", IndexExpression{"pkg", "rt", "/ns:root/ns:node", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseIndexExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIndexExpression_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"/pkg/rt",
		"/pkg/rt/",
		"pkg/rt/root",
		"/pkg/rt/root[1]/node",
		"/pkg/rt/root/node[@id]",
		"/*/rt/root",
		"/p kg/rt/root",
		"/pkg/rt/root//node",
		"/pkg/rt/root#",
		"/pkg/rt/#root",
		"/pkg/rt/a#b#c",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseIndexExpression(expr)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSplitGroupMarker(t *testing.T) {
	xpath, group, err := SplitGroupMarker("station/XY#X")
	require.NoError(t, err)
	assert.Equal(t, "/station/XY/X", xpath)
	assert.Equal(t, "/station/XY", group)

	xpath, group, err = SplitGroupMarker("/station/lat")
	require.NoError(t, err)
	assert.Equal(t, "/station/lat", xpath)
	assert.Empty(t, group)

	_, _, err = SplitGroupMarker("/")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSplitGroupMarker_Steps(t *testing.T) {
	for _, raw := range []string{"/station/*", "/ns:station/ns:*", "/station/XY/@id", "/station/@ns:unit", "/_a/b-c/d.e"} {
		t.Run(raw, func(t *testing.T) {
			_, _, err := SplitGroupMarker(raw)
			assert.NoError(t, err)
		})
	}

	for _, raw := range []string{
		"/station/lat(",
		"/station/lat()",
		"/station/text()",
		"/station/@id/lat",
		"/station/1lat",
		"/station/a:b:c",
		"/station/:lat",
		"/station/la t",
		"/station/..",
		"/station/@",
		"/station/*lat",
		"/station/XY#X(",
	} {
		t.Run(raw, func(t *testing.T) {
			_, _, err := SplitGroupMarker(raw)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
