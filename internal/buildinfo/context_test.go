package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextAccessors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{name: "nil context", ctx: nil, version: UnknownValue, buildDate: UnknownValue},
		{name: "empty context", ctx: &Context{}, version: UnknownValue, buildDate: UnknownValue},
		{
			name:      "populated",
			ctx:       &Context{Version: "v1.2.0", BuildDate: "2026-10-01"},
			version:   "v1.2.0",
			buildDate: "2026-10-01",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.GetVersion())
			assert.Equal(t, tt.buildDate, tt.ctx.GetBuildDate())
		})
	}
}

func TestContextString(t *testing.T) {
	t.Parallel()

	ctx := &Context{Version: "v1.2.0"}
	assert.Equal(t, "eqroute v1.2.0 (built unknown)", ctx.String())
}
