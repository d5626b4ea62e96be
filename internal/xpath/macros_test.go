package xpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

func TestApplyMacros(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"{test=world, blub=!} hello {test}{blub}", "hello world!"},
		{"{\n test = world ,   blub\n=!} hello\n{test}{blub}", "hello world!"},
		{"{test=/muh/blub/nn, blub=!} hello {test}{blub}", "hello /muh/blub/nn!"},
		{"{unused=x} /pkg/rt", "/pkg/rt"},
		{"/pkg/rt[a  =  'two  spaces']", "/pkg/rt[a = 'two  spaces']"},
		{`{x=1} /pkg/rt[a = "{x}"]`, `/pkg/rt[a = "{x}"]`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ApplyMacros(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyMacros_Errors(t *testing.T) {
	for _, in := range []string{
		"{a=b /pkg/rt",
		"{a} /pkg/rt",
		"{=b} /pkg/rt",
		"/pkg/rt[{missing}]",
		"{a=b} /pkg/rt[{a]",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ApplyMacros(in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
