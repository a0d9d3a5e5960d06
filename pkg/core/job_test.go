package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStyle_String(t *testing.T) {
	assert.Equal(t, "classic", StyleClassic.String())
	assert.Equal(t, "extended", StyleExtended.String())
}

func TestStyleOptions_Defaults(t *testing.T) {
	var opts StyleOptions
	assert.False(t, opts.ExplicitDelete)
	assert.False(t, opts.RunOutsideTimeout)
	assert.False(t, opts.NoBuryForErrorHandler)
}

func TestEnvelope_ZeroValueIsClassic(t *testing.T) {
	env := Envelope{Name: "my.job"}
	assert.Equal(t, StyleClassic, env.Style)
	assert.Nil(t, env.Args)
}
