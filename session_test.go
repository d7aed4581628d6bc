package rpc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sly1024/super-rpc/descriptor"
)

// Scenario 1: sync math.
func TestSyncMath(t *testing.T) {
	host, client := newLinkedSessions(t)

	calc := NewHostObject("calc", nil, descriptor.Object{
		Functions: []descriptor.Function{
			{Name: "add", Returns: descriptor.ReturnSync},
			{Name: "failSync", Returns: descriptor.ReturnSync},
		},
	})
	calc.Functions["add"] = func(args []any) (any, error) {
		return args[0].(float64) + args[1].(float64), nil
	}
	calc.Functions["failSync"] = func([]any) (any, error) {
		return nil, fmt.Errorf("ErRoR")
	}
	host.RegisterHostObject("calc", calc)
	host.PushDescriptors()
	_, err := client.PullDescriptors().Await()
	require.NoError(t, err)

	proxy, err := client.GetProxyObject("calc")
	require.NoError(t, err)

	result, err := proxy.Call("add", []any{2.0, 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)

	_, err = proxy.Call("failSync", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ErRoR")
}

// Scenario 2: async ping-pong.
func TestAsyncPingPong(t *testing.T) {
	host, client := newLinkedSessions(t)

	obj := NewHostObject("ops", nil, descriptor.Object{
		Functions: []descriptor.Function{{Name: "asyncFunc"}, {Name: "failAsync"}},
	})
	obj.Functions["asyncFunc"] = func(args []any) (any, error) {
		return args[0].(string) + "pong", nil
	}
	obj.Functions["failAsync"] = func([]any) (any, error) {
		return nil, fmt.Errorf("pingerr")
	}
	host.RegisterHostObject("ops", obj)
	host.PushDescriptors()
	_, err := client.PullDescriptors().Await()
	require.NoError(t, err)

	proxy, err := client.GetProxyObject("ops")
	require.NoError(t, err)

	result, err := proxy.Call("asyncFunc", []any{"ping"})
	require.NoError(t, err)
	assert.Equal(t, "pingpong", result)

	_, err = proxy.Call("failAsync", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pingerr")
}

// Scenario 3: proxied property.
func TestProxiedProperty(t *testing.T) {
	host, client := newLinkedSessions(t)

	counter := 1
	obj := NewHostObject("counter-obj", nil, descriptor.Object{
		ProxiedProperties: []descriptor.ProxiedProperty{{Name: "counter"}},
	})
	obj.Getters["counter"] = func([]any) (any, error) { return counter, nil }
	obj.Setters["counter"] = func(args []any) (any, error) {
		counter = args[0].(int)
		return nil, nil
	}
	host.RegisterHostObject("counter-obj", obj)
	host.PushDescriptors()
	_, err := client.PullDescriptors().Await()
	require.NoError(t, err)

	proxy, err := client.GetProxyObject("counter-obj")
	require.NoError(t, err)

	v, err := proxy.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, proxy.Set("counter", 2))
	assert.Equal(t, 2, counter)

	v, err = proxy.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

// Scenario 4: event pair.
func TestEventPair(t *testing.T) {
	host, client := newLinkedSessions(t)

	obj := NewHostObject("emitter", nil, descriptor.Object{
		Events: []descriptor.Event{{Name: "data"}},
	})
	host.RegisterHostObject("emitter", obj)
	host.PushDescriptors()
	_, err := client.PullDescriptors().Await()
	require.NoError(t, err)

	proxy, err := client.GetProxyObject("emitter")
	require.NoError(t, err)

	received := 0
	listener := HostFunc(func(args []any) (any, error) {
		received++
		assert.Equal(t, "payload", args[0])
		return nil, nil
	})
	registered, err := proxy.AddEventListener("data", listener)
	require.NoError(t, err)

	obj.Fire("data", "payload")
	assert.Equal(t, 1, received)

	require.NoError(t, proxy.RemoveEventListener("data", registered))
	obj.Fire("data", "payload")
	assert.Equal(t, 1, received, "listener should not fire after removal")
}

type thing struct {
	name  string
	color string
}

// Scenario 5: class round-trip.
func TestClassRoundTrip(t *testing.T) {
	host, client := newLinkedSessions(t)

	instances := map[string]*thing{}
	cls := NewHostClass("A", descriptor.Class{
		ClassID: "A",
		Ctor:    &descriptor.Function{Name: "ctor"},
		Static: descriptor.Object{
			Functions: []descriptor.Function{{Name: "createInstance"}},
		},
		Instance: descriptor.Object{
			Functions:         []descriptor.Function{{Name: "getDescription"}},
			ProxiedProperties: []descriptor.ProxiedProperty{{Name: "color"}},
		},
	})
	cls.StaticFunctions["createInstance"] = func(args []any) (any, error) {
		name := args[0].(string)
		instance := &thing{name: name, color: "red"}
		ho, err := host.WrapInstance("A", instance)
		if err != nil {
			return nil, err
		}
		instances[name] = instance
		return ho, nil
	}
	cls.BindInstance = func(target any) (map[string]HostFunc, map[string]HostFunc, map[string]HostFunc) {
		obj := target.(*thing)
		functions := map[string]HostFunc{
			"getDescription": func([]any) (any, error) {
				return fmt.Sprintf("%s %s", obj.color, obj.name), nil
			},
		}
		getters := map[string]HostFunc{
			"color": func([]any) (any, error) { return obj.color, nil },
		}
		setters := map[string]HostFunc{
			"color": func(args []any) (any, error) { obj.color = args[0].(string); return nil, nil },
		}
		return functions, getters, setters
	}
	cls.Processor = func(target any, desc *descriptor.Object) {
		obj := target.(*thing)
		if desc.ReadonlyProperties == nil {
			desc.ReadonlyProperties = map[string]any{}
		}
		desc.ReadonlyProperties["name"] = obj.name
	}
	host.RegisterHostClass(cls)
	host.PushDescriptors()
	_, err := client.PullDescriptors().Await()
	require.NoError(t, err)

	proxyClass, err := client.GetProxyClass("A")
	require.NoError(t, err)

	instanceProxy, err := proxyClass.Static.Call("createInstance", []any{"test2"})
	require.NoError(t, err)
	po, ok := instanceProxy.(*ProxyObject)
	require.True(t, ok)

	name, ok := po.Readonly("name")
	require.True(t, ok)
	assert.Equal(t, "test2", name)

	require.NoError(t, po.Set("color", "green"))
	desc, err := po.Call("getDescription", nil)
	require.NoError(t, err)
	assert.Equal(t, "green test2", desc)
}

// Scenario 6: identity is preserved when a proxy is sent back to its
// origin endpoint.
func TestIdentityOnSendBack(t *testing.T) {
	host, client := newLinkedSessions(t)

	cls := NewHostClass("Thing", descriptor.Class{ClassID: "Thing"})
	host.RegisterHostClass(cls)

	stable := &thing{name: "stable"}
	stableHO, err := host.WrapInstance("Thing", stable)
	require.NoError(t, err)

	var received any
	ops := NewHostObject("identity-ops", nil, descriptor.Object{
		Functions: []descriptor.Function{{Name: "getA"}, {Name: "setA"}},
	})
	ops.Functions["getA"] = func([]any) (any, error) { return stableHO, nil }
	ops.Functions["setA"] = func(args []any) (any, error) {
		received = args[0]
		return nil, nil
	}
	host.RegisterHostObject("identity-ops", ops)
	host.PushDescriptors()
	_, err = client.PullDescriptors().Await()
	require.NoError(t, err)

	proxy, err := client.GetProxyObject("identity-ops")
	require.NoError(t, err)

	gotA, err := proxy.Call("getA", nil)
	require.NoError(t, err)

	_, err = proxy.Call("setA", []any{gotA})
	require.NoError(t, err)

	assert.Same(t, stable, received)
}

// Scenario 7: promise ping-pong, including an already-settled promise
// passed to a callback and an inner rejection surfacing as a proxy-side
// rejection.
func TestPromisePingPong(t *testing.T) {
	host, client := newLinkedSessions(t)

	ops := NewHostObject("promise-ops", nil, descriptor.Object{
		Functions: []descriptor.Function{{Name: "giveMeAPromise"}, {Name: "giveMeARejection"}},
	})
	ops.Functions["giveMeAPromise"] = func(args []any) (any, error) {
		fn := args[0].(*ProxyFunc)
		p := NewPromise()
		p.Resolve("done")
		return fn.Call([]any{p})
	}
	ops.Functions["giveMeARejection"] = func(args []any) (any, error) {
		fn := args[0].(*ProxyFunc)
		p := NewPromise()
		p.Reject(fmt.Errorf("innerErr"))
		return fn.Call([]any{p})
	}
	host.RegisterHostObject("promise-ops", ops)
	host.PushDescriptors()
	_, err := client.PullDescriptors().Await()
	require.NoError(t, err)

	proxy, err := client.GetProxyObject("promise-ops")
	require.NoError(t, err)

	callback := HostFunc(func(args []any) (any, error) {
		p := args[0].(*Promise)
		v, err := p.Await()
		if err != nil {
			return nil, err
		}
		return "well" + v.(string), nil
	})
	result, err := proxy.Call("giveMeAPromise", []any{callback})
	require.NoError(t, err)
	assert.Equal(t, "welldone", result)

	rejectingCallback := HostFunc(func(args []any) (any, error) {
		p := args[0].(*Promise)
		_, err := p.Await()
		return nil, err
	})
	_, err = proxy.Call("giveMeARejection", []any{rejectingCallback})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "innerErr")
}

// Scenario 8: disposed function.
func TestDisposedFunction(t *testing.T) {
	host, client := newLinkedSessions(t)

	ping := &HostFunction{
		Desc: descriptor.Function{Name: "ping", Returns: descriptor.ReturnSync},
		Fn:   func([]any) (any, error) { return "pong", nil },
	}
	host.RegisterHostFunction("ping", ping)
	host.PushDescriptors()
	_, err := client.PullDescriptors().Await()
	require.NoError(t, err)

	pf, err := client.GetProxyFunction("ping")
	require.NoError(t, err)

	result, err := pf.Call(nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", result)

	pf.Dispose()

	_, err = pf.Call(nil)
	assert.ErrorIs(t, err, ErrDisposed)

	pr := pf.CallAsync(nil)
	_, err = pr.Await()
	assert.ErrorIs(t, err, ErrDisposed)
}
