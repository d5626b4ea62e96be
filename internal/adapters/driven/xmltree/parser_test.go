package xmltree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

const station = `<?xml version="1.0" encoding="utf-8"?>
<station rel_uri="bern">
  <station_name>Bern</station_name>
  <lat>50.23200</lat>
  <XY id="1"><X>1</X><Y>2</Y></XY>
  <XY id="2"><X>3</X><Y>4</Y></XY>
</station>`

func contents(nodes []domain.XMLNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.StrContent()
	}
	return out
}

func TestParser_EvalXPath(t *testing.T) {
	p := NewParser()
	tree, err := p.Parse([]byte(station))
	require.NoError(t, err)

	nodes, err := tree.EvalXPath("/station/lat")
	require.NoError(t, err)
	assert.Equal(t, []string{"50.23200"}, contents(nodes))

	nodes, err = tree.EvalXPath("/station/XY/@id")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, contents(nodes))

	nodes, err = tree.EvalXPath("/station/@rel_uri")
	require.NoError(t, err)
	assert.Equal(t, []string{"bern"}, contents(nodes))

	nodes, err = tree.EvalXPath("/station/missing")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	assert.Equal(t, "station", RootName(tree))
}

func TestParser_RelativeEvaluation(t *testing.T) {
	p := NewParser()
	tree, err := p.Parse([]byte(station))
	require.NoError(t, err)

	anchors, err := tree.EvalXPath("/station/XY")
	require.NoError(t, err)
	require.Len(t, anchors, 2)

	var ys []string
	for _, a := range anchors {
		nodes, err := a.EvalXPath("Y")
		require.NoError(t, err)
		ys = append(ys, contents(nodes)...)
	}
	assert.Equal(t, []string{"2", "4"}, ys)
}

func TestParser_Invalid(t *testing.T) {
	p := NewParser()

	_, err := p.Parse([]byte("<station><lat>1</station>"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = p.Parse([]byte(""))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.NoError(t, p.ValidateXPath("/station/XY/@id"))
	assert.ErrorIs(t, p.ValidateXPath("/station/["), domain.ErrInvalidInput)
}
