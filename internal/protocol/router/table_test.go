package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func noop(command string) Handler {
	return Func(command, func(context.Context, *Call) {})
}

func TestTableLookup(t *testing.T) {
	table := NewTable(noop("npi"), noop("dea"), noop("license"))

	h, ok := table.Lookup("dea")
	assert.True(t, ok)
	assert.Equal(t, "dea", h.Command())

	_, ok = table.Lookup("foo")
	assert.False(t, ok)

	assert.Equal(t, []string{"dea", "license", "npi"}, table.Commands())
	assert.Equal(t, 3, table.Len())
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.PanicsWithValue(t, `router: command "dea" registered twice`, func() {
		NewTable(noop("dea"), noop("dea"))
	})
}

func TestRegisterEmptyCommandPanics(t *testing.T) {
	assert.Panics(t, func() { NewBuilder().Register(noop("")) })
}

func TestRegisterAfterBuildPanics(t *testing.T) {
	b := NewBuilder().Register(noop("dea"))
	table := b.Build()
	assert.Panics(t, func() { b.Register(noop("npi")) })
	_, ok := table.Lookup("npi")
	assert.False(t, ok)
}
