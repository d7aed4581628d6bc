package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionEffectiveReturns(t *testing.T) {
	assert.Equal(t, ReturnAsync, Function{}.EffectiveReturns())
	assert.Equal(t, ReturnSync, Function{Returns: ReturnSync}.EffectiveReturns())
	assert.Equal(t, ReturnVoid, Function{Returns: ReturnVoid}.EffectiveReturns())
}

func TestObjectResolveFunction(t *testing.T) {
	o := Object{Functions: []Function{{Name: "add", Returns: ReturnSync}}}

	fd := o.ResolveFunction("add")
	assert.Equal(t, ReturnSync, fd.Returns)
	assert.True(t, o.HasFunction("add"))

	fallback := o.ResolveFunction("missing")
	assert.Equal(t, "missing", fallback.Name)
	assert.False(t, o.HasFunction("missing"))
}

func TestFunctionResolveArg(t *testing.T) {
	fd := Function{Args: []Arg{{Idx: 1, IsFunction: true}}}
	require.True(t, fd.ResolveArg(1).IsFunction)
	assert.False(t, fd.ResolveArg(0).IsFunction)
}

func TestEventMethodNames(t *testing.T) {
	ev := Event{Name: "data"}
	assert.Equal(t, "add_data", ev.AddMethodName())
	assert.Equal(t, "remove_data", ev.RemoveMethodName())
}

func TestObjectResolveEventByMethodName(t *testing.T) {
	o := Object{Events: []Event{{Name: "data"}}}

	ev, isAdd, ok := o.ResolveEventByMethodName("add_data")
	require.True(t, ok)
	assert.True(t, isAdd)
	assert.Equal(t, "data", ev.Name)

	ev, isAdd, ok = o.ResolveEventByMethodName("remove_data")
	require.True(t, ok)
	assert.False(t, isAdd)
	assert.Equal(t, "data", ev.Name)

	_, _, ok = o.ResolveEventByMethodName("add_other")
	assert.False(t, ok)
}

func TestObjectResolveProxiedProperty(t *testing.T) {
	o := Object{ProxiedProperties: []ProxiedProperty{{Name: "counter", GetterReturns: ReturnSync}}}

	pp, ok := o.ResolveProxiedProperty("counter")
	require.True(t, ok)
	assert.Equal(t, ReturnSync, pp.GetterReturns)

	_, ok = o.ResolveProxiedProperty("missing")
	assert.False(t, ok)
}
