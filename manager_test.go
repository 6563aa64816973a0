package ipywire

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/raskyld/ipywire/pkg/comm"
	"github.com/raskyld/ipywire/pkg/proptype"
	"github.com/raskyld/ipywire/pkg/value"
)

const eventually = 2 * time.Second
const tick = 5 * time.Millisecond

// fakeFrontend records what a kernel sends on the widget target.
type fakeFrontend struct {
	ep *comm.Endpoint

	lk     sync.Mutex
	opens  []comm.Comm
	states []map[string]any
	msgs   map[string][]comm.Message
	closed map[string]bool
}

func newSession(t *testing.T, opts ...Option) (*Manager, *fakeFrontend) {
	t.Helper()
	mgr, fe, _ := newHookedSession(t, opts...)
	return mgr, fe
}

// hookedComms lets a test act right before the kernel opens a comm. An
// error returned by the hook fails the opening.
type hookedComms struct {
	comm.Manager

	lk         sync.Mutex
	beforeOpen func() error
}

func (h *hookedComms) onOpen(fn func() error) {
	h.lk.Lock()
	defer h.lk.Unlock()
	h.beforeOpen = fn
}

func (h *hookedComms) Open(ctx context.Context, target string, open comm.Message, handler comm.Handler) (comm.Comm, error) {
	h.lk.Lock()
	fn := h.beforeOpen
	h.lk.Unlock()
	if fn != nil {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return h.Manager.Open(ctx, target, open, handler)
}

func newHookedSession(t *testing.T, opts ...Option) (*Manager, *fakeFrontend, *hookedComms) {
	t.Helper()
	kernel, frontend, err := comm.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		kernel.Close()
	})

	fe := &fakeFrontend{
		ep:     frontend,
		msgs:   make(map[string][]comm.Message),
		closed: make(map[string]bool),
	}
	require.NoError(t, frontend.RegisterTarget(TargetWidget, fe.accept))

	hooks := &hookedComms{Manager: kernel}
	mgr, err := NewManager(hooks, opts...)
	require.NoError(t, err)
	return mgr, fe, hooks
}

func (fe *fakeFrontend) accept(c comm.Comm, open comm.Message) (comm.Handler, error) {
	var payload map[string]any
	if err := json.Unmarshal(open.Data, &payload); err != nil {
		return nil, err
	}
	state, _ := payload["state"].(map[string]any)

	fe.lk.Lock()
	defer fe.lk.Unlock()
	fe.opens = append(fe.opens, c)
	fe.states = append(fe.states, state)
	return comm.HandlerFuncs{
		OnMessage: func(c comm.Comm, msg comm.Message) {
			fe.lk.Lock()
			defer fe.lk.Unlock()
			fe.msgs[c.ID()] = append(fe.msgs[c.ID()], msg)
		},
		OnClose: func(c comm.Comm, _ comm.Message) {
			fe.lk.Lock()
			defer fe.lk.Unlock()
			fe.closed[c.ID()] = true
		},
	}, nil
}

func (fe *fakeFrontend) openCount() int {
	fe.lk.Lock()
	defer fe.lk.Unlock()
	return len(fe.opens)
}

func (fe *fakeFrontend) open(i int) (comm.Comm, map[string]any) {
	fe.lk.Lock()
	defer fe.lk.Unlock()
	return fe.opens[i], fe.states[i]
}

func (fe *fakeFrontend) messages(id string) []comm.Message {
	fe.lk.Lock()
	defer fe.lk.Unlock()
	return append([]comm.Message(nil), fe.msgs[id]...)
}

func (fe *fakeFrontend) isClosed(id string) bool {
	fe.lk.Lock()
	defer fe.lk.Unlock()
	return fe.closed[id]
}

func decode(t *testing.T, msg comm.Message) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &out))
	return out
}

func TestManager_EndToEnd(t *testing.T) {
	mgr, fe := newSession(t)
	ctx := context.Background()

	s := newSlider(mgr)
	require.NoError(t, mgr.Register(ctx, s))
	require.True(t, s.IsLive())
	require.NoError(t, mgr.Register(ctx, s), "registering twice is a no-op")

	require.Eventually(t, func() bool { return fe.openCount() == 1 }, eventually, tick)
	c, state := fe.open(0)
	require.Equal(t, "IntSliderModel", state["_model_name"])
	require.Equal(t, s.ID(), c.ID(), "the comm id is the model id")
	require.Nil(t, state["data"], "buffers are stripped from the state")

	require.NoError(t, s.Value.Set(42))
	require.Eventually(t, func() bool { return len(fe.messages(c.ID())) == 1 }, eventually, tick)

	update := decode(t, fe.messages(c.ID())[0])
	require.Equal(t, "update", update["method"])
	require.Equal(t, map[string]any{"value": 42.0}, update["state"])
	require.Equal(t, []any{}, update["buffer_paths"])

	t.Run("when bytes change, they travel as buffers", func(t *testing.T) {
		require.NoError(t, s.Data.Set([]byte{0xca, 0xfe}))
		require.Eventually(t, func() bool { return len(fe.messages(c.ID())) == 2 }, eventually, tick)

		msg := fe.messages(c.ID())[1]
		update := decode(t, msg)
		require.Equal(t, map[string]any{"data": nil}, update["state"])
		require.Equal(t, []any{[]any{"data"}}, update["buffer_paths"])
		require.Equal(t, [][]byte{{0xca, 0xfe}}, msg.Buffers)
	})

	require.Equal(t, 1, fe.openCount())
}

func TestManager_InboundUpdateIsNotEchoed(t *testing.T) {
	mgr, fe := newSession(t)
	ctx := context.Background()

	s := newSlider(mgr)
	var origins []Origin
	s.Value.OnChange(func(_, _ int, origin Origin) {
		origins = append(origins, origin)
	})
	require.NoError(t, mgr.Register(ctx, s))
	require.Eventually(t, func() bool { return fe.openCount() == 1 }, eventually, tick)
	c, _ := fe.open(0)

	require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{
		"method":       "update",
		"state":        map[string]any{"value": 7, "unknown": true, "data": nil},
		"buffer_paths": [][]any{{"data"}},
	}, []byte("bin"))))
	require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{"method": "request_state"})))

	require.Eventually(t, func() bool { return len(fe.messages(c.ID())) == 1 }, eventually, tick)
	require.Equal(t, 7, s.Value.Get())
	require.Equal(t, []byte("bin"), s.Data.Get())
	require.Equal(t, []Origin{OriginRemote}, origins)

	// request_state was processed after the update: if the update had been
	// echoed, it would come first.
	reply := decode(t, fe.messages(c.ID())[0])
	require.Equal(t, "update", reply["method"])
	state := reply["state"].(map[string]any)
	require.Equal(t, 7.0, state["value"])
	require.Equal(t, "IntSliderModel", state["_model_name"])
	require.Equal(t, []any{[]any{"data"}}, reply["buffer_paths"])
	require.Equal(t, [][]byte{[]byte("bin")}, fe.messages(c.ID())[0].Buffers)
}

func TestManager_EchoUpdates(t *testing.T) {
	mgr, fe := newSession(t, WithEchoUpdates(true))
	ctx := context.Background()

	s := newSlider(mgr)
	require.NoError(t, mgr.Register(ctx, s))
	require.Eventually(t, func() bool { return fe.openCount() == 1 }, eventually, tick)
	c, _ := fe.open(0)

	require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{
		"method":       "update",
		"state":        map[string]any{"value": 3},
		"buffer_paths": [][]any{},
	})))

	require.Eventually(t, func() bool { return len(fe.messages(c.ID())) == 1 }, eventually, tick)
	echo := decode(t, fe.messages(c.ID())[0])
	require.Equal(t, "echo_update", echo["method"])
	require.Equal(t, map[string]any{"value": 3.0}, echo["state"])

	t.Run("when the frontend sends an echo_update, it is ignored", func(t *testing.T) {
		require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{
			"method": "echo_update",
			"state":  map[string]any{"value": 100},
		})))
		require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{"method": "request_state"})))
		require.Eventually(t, func() bool { return len(fe.messages(c.ID())) == 2 }, eventually, tick)
		require.Equal(t, 3, s.Value.Get())
	})
}

func TestManager_MalformedMessagesAreSurvived(t *testing.T) {
	mgr, fe := newSession(t)
	ctx := context.Background()

	s := newSlider(mgr)
	require.NoError(t, mgr.Register(ctx, s))
	require.Eventually(t, func() bool { return fe.openCount() == 1 }, eventually, tick)
	c, _ := fe.open(0)

	require.NoError(t, c.Send(ctx, comm.Message{Data: json.RawMessage(`{"method":`)}))
	require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{"method": "teleport"})))
	require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{
		"method":       "update",
		"state":        map[string]any{"value": 1},
		"buffer_paths": [][]any{{"value", "deep"}},
	}, []byte("x"))))
	require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{
		"method": "update",
		"state":  map[string]any{"value": 5},
	})))

	require.Eventually(t, func() bool { return s.Value.Get() == 5 }, eventually, tick)
	require.Empty(t, fe.messages(c.ID()))
}

func TestManager_CustomMessages(t *testing.T) {
	mgr, fe := newSession(t)
	ctx := context.Background()

	s := newSlider(mgr)
	require.ErrorIs(t, s.SendCustom(ctx, "hi"), ErrNotRegistered)

	type custom struct {
		content map[string]any
		buffers [][]byte
	}
	received := make(chan custom, 1)
	s.OnCustom(func(content map[string]any, buffers [][]byte) {
		received <- custom{content, buffers}
	})

	require.NoError(t, mgr.Register(ctx, s))
	require.Eventually(t, func() bool { return fe.openCount() == 1 }, eventually, tick)
	c, _ := fe.open(0)

	require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{
		"method":  "custom",
		"content": map[string]any{"event": "click"},
	}, []byte{1})))

	select {
	case got := <-received:
		require.Equal(t, map[string]any{"event": "click"}, got.content)
		require.Equal(t, [][]byte{{1}}, got.buffers)
	case <-time.After(eventually):
		t.Fatal("custom handler not called")
	}

	require.NoError(t, s.SendCustom(ctx, map[string]any{"do": "focus"}, []byte{2}))
	require.Eventually(t, func() bool { return len(fe.messages(c.ID())) == 1 }, eventually, tick)
	msg := fe.messages(c.ID())[0]
	require.Equal(t, map[string]any{"method": "custom", "content": map[string]any{"do": "focus"}}, decode(t, msg))
	require.Equal(t, [][]byte{{2}}, msg.Buffers)
}

func TestManager_BulkResync(t *testing.T) {
	mgr, fe := newSession(t)
	ctx := context.Background()

	a, b := newSlider(mgr), newSlider(mgr)
	require.NoError(t, b.Data.Set([]byte("pixels")))
	require.NoError(t, mgr.Register(ctx, a))
	require.NoError(t, mgr.Register(ctx, b))

	replies := make(chan comm.Message, 1)
	ctrl, err := fe.ep.Open(ctx, TargetControl, comm.Message{}, comm.HandlerFuncs{
		OnMessage: func(_ comm.Comm, msg comm.Message) {
			replies <- msg
		},
	})
	require.NoError(t, err)
	require.NoError(t, ctrl.Send(ctx, comm.JSON(map[string]any{"method": "request_states"})))

	var reply comm.Message
	select {
	case reply = <-replies:
	case <-time.After(eventually):
		t.Fatal("no update_states received")
	}

	payload := decode(t, reply)
	require.Equal(t, "update_states", payload["method"])
	states := payload["states"].(map[string]any)
	require.Len(t, states, 2)
	require.Contains(t, states, a.ID())
	require.Contains(t, states, b.ID())
	require.Equal(t, "IntSliderModel", states[a.ID()].(map[string]any)["_model_name"])

	// Every slider carries a buffer, even an empty one, in id order.
	wantPaths := []any{[]any{a.ID(), "data"}, []any{b.ID(), "data"}}
	wantBuffers := [][]byte{{}, []byte("pixels")}
	if b.ID() < a.ID() {
		wantPaths[0], wantPaths[1] = wantPaths[1], wantPaths[0]
		wantBuffers[0], wantBuffers[1] = wantBuffers[1], wantBuffers[0]
	}
	require.Equal(t, wantPaths, payload["buffer_paths"])
	require.Equal(t, wantBuffers, reply.Buffers)
}

func TestManager_FrontendOpen(t *testing.T) {
	reg := NewRegistry(func(reg *Registry) error {
		return reg.Register("IntSliderModel", func(mgr *Manager, fromFrontend bool) (Widget, error) {
			return newSlider(mgr), nil
		})
	})
	mgr, fe := newSession(t, WithRegistry(reg))
	ctx := context.Background()

	t.Run("when the model is known, the widget goes live", func(t *testing.T) {
		updates := make(chan comm.Message, 1)
		c, err := fe.ep.Open(ctx, TargetWidget, comm.JSON(map[string]any{
			"state": map[string]any{
				"_model_name": "IntSliderModel",
				"value":       5,
				"data":        nil,
			},
			"buffer_paths": [][]any{{"data"}},
		}, []byte("init")), comm.HandlerFuncs{
			OnMessage: func(_ comm.Comm, msg comm.Message) { updates <- msg },
		})
		require.NoError(t, err)

		require.Eventually(t, func() bool { return len(mgr.Widgets()) == 1 }, eventually, tick)
		w, err := mgr.Resolve(c.ID())
		require.NoError(t, err)

		s := w.(*slider)
		require.True(t, s.FromFrontend())
		require.True(t, s.IsLive())
		require.Equal(t, 5, s.Value.Get())
		require.Equal(t, []byte("init"), s.Data.Get())

		require.NoError(t, s.Value.Set(6))
		select {
		case msg := <-updates:
			require.Equal(t, map[string]any{"value": 6.0}, decode(t, msg)["state"])
		case <-time.After(eventually):
			t.Fatal("local change not sent to the frontend")
		}
	})

	t.Run("when the model is unknown, the comm is closed", func(t *testing.T) {
		closed := make(chan struct{})
		_, err := fe.ep.Open(ctx, TargetWidget, comm.JSON(map[string]any{
			"state":        map[string]any{"_model_name": "MysteryModel"},
			"buffer_paths": [][]any{},
		}), comm.HandlerFuncs{
			OnClose: func(comm.Comm, comm.Message) { close(closed) },
		})
		require.NoError(t, err)

		select {
		case <-closed:
		case <-time.After(eventually):
			t.Fatal("comm was not closed")
		}
		require.Len(t, mgr.Widgets(), 1)
	})
}

func TestManager_Close(t *testing.T) {
	mgr, fe := newSession(t)
	ctx := context.Background()

	s := newSlider(mgr)
	require.NoError(t, mgr.Register(ctx, s))
	require.Eventually(t, func() bool { return fe.openCount() == 1 }, eventually, tick)
	c, _ := fe.open(0)
	id := s.ID()

	require.NoError(t, mgr.Close(ctx, s))
	require.False(t, s.IsLive())
	require.Empty(t, mgr.Widgets())
	require.Eventually(t, func() bool { return fe.isClosed(c.ID()) }, eventually, tick)

	_, err := mgr.Resolve(id)
	require.ErrorIs(t, err, ErrUnknownWidget)

	require.NoError(t, s.Value.Set(1), "a closed widget can still be written")

	t.Run("when registered again, a new comm is opened", func(t *testing.T) {
		require.NoError(t, mgr.Register(ctx, s))
		require.Eventually(t, func() bool { return fe.openCount() == 2 }, eventually, tick)
		require.NotEqual(t, id, s.ID())
	})

	t.Run("when the frontend closes the comm, the widget is dropped", func(t *testing.T) {
		c, _ := fe.open(1)
		require.NoError(t, c.Close(ctx, comm.Message{}))
		require.Eventually(t, func() bool { return !s.IsLive() }, eventually, tick)
		require.Empty(t, mgr.Widgets())
	})
}

func TestManager_Shutdown(t *testing.T) {
	mgr, fe := newSession(t)
	ctx := context.Background()

	a, b := newSlider(mgr), newSlider(mgr)
	require.NoError(t, mgr.Register(ctx, a))
	require.NoError(t, mgr.Register(ctx, b))

	require.NoError(t, mgr.Shutdown(ctx))
	require.False(t, a.IsLive())
	require.False(t, b.IsLive())
	require.ErrorIs(t, mgr.Register(ctx, a), ErrManagerClosed)
	require.Eventually(t, func() bool { return fe.openCount() == 2 }, eventually, tick)
}

func TestManager_ConcurrentRegister(t *testing.T) {
	mgr, fe := newSession(t)
	s := newSlider(mgr)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mgr.Register(context.Background(), s))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return fe.openCount() == 1 }, eventually, tick)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, fe.openCount())
}

type box struct {
	*Model
	Child *Property[*slider]
}

func TestManager_References(t *testing.T) {
	mgr, fe := newSession(t)
	ctx := context.Background()

	child := newSlider(mgr)
	m := NewModel(mgr, ControlSpec("BoxModel", "BoxView"))
	parent := &box{
		Model: m,
		Child: Attach(m, "child", proptype.Reference[*slider]("slider"), child),
	}

	require.NoError(t, mgr.Register(ctx, parent))
	require.True(t, child.IsLive(), "referenced widgets are registered first")

	require.Eventually(t, func() bool { return fe.openCount() == 2 }, eventually, tick)
	_, first := fe.open(0)
	_, second := fe.open(1)
	require.Equal(t, "IntSliderModel", first["_model_name"])
	require.Equal(t, "IPY_MODEL_"+child.ID(), second["child"])

	t.Run("when the frontend points to a live widget, it resolves", func(t *testing.T) {
		other := newSlider(mgr)
		require.NoError(t, mgr.Register(ctx, other))

		c, _ := fe.open(1)
		require.NoError(t, c.Send(ctx, comm.JSON(map[string]any{
			"method": "update",
			"state":  map[string]any{"child": "IPY_MODEL_" + other.ID()},
		})))
		require.Eventually(t, func() bool { return parent.Child.Get() == other }, eventually, tick)
	})

	t.Run("when the frontend points to an unknown widget, nothing changes", func(t *testing.T) {
		before := parent.Child.Get()
		err := parent.applyPatchWithoutEcho(value.Map{"child": value.String("IPY_MODEL_nope")})
		require.ErrorIs(t, err, proptype.ErrUnresolvable)
		require.ErrorIs(t, err, ErrUnknownWidget)
		require.Same(t, before, parent.Child.Get())
	})

	_, err := mgr.Resolve("nope")
	require.ErrorIs(t, err, ErrUnknownWidget)

	_, err = mgr.IDOf("not a widget")
	require.ErrorIs(t, err, ErrNotWidget)
}

func TestManager_ChangeDuringRegistration(t *testing.T) {
	mgr, fe, hooks := newHookedSession(t)
	ctx := context.Background()

	s := newSlider(mgr)
	hooks.onOpen(func() error {
		assert.NoError(t, s.Value.Set(42))
		return nil
	})
	require.NoError(t, mgr.Register(ctx, s))
	hooks.onOpen(nil)

	require.Eventually(t, func() bool { return fe.openCount() == 1 }, eventually, tick)
	c, state := fe.open(0)
	require.Equal(t, 0.0, state["value"])

	t.Run("when the value changed while the comm was opening, an update follows", func(t *testing.T) {
		require.Eventually(t, func() bool { return len(fe.messages(c.ID())) == 1 }, eventually, tick)
		update := decode(t, fe.messages(c.ID())[0])
		require.Equal(t, "update", update["method"])
		require.Equal(t, map[string]any{"value": 42.0}, update["state"])
	})

	t.Run("when the widget is live, changes are sent after the held ones", func(t *testing.T) {
		require.NoError(t, s.Value.Set(7))
		require.Eventually(t, func() bool { return len(fe.messages(c.ID())) == 2 }, eventually, tick)
		update := decode(t, fe.messages(c.ID())[1])
		require.Equal(t, map[string]any{"value": 7.0}, update["state"])
	})
}

func TestManager_RegistrationFailureDropsHeldChanges(t *testing.T) {
	mgr, fe, hooks := newHookedSession(t)
	ctx := context.Background()

	s := newSlider(mgr)
	refused := errors.New("refused")
	hooks.onOpen(func() error {
		assert.NoError(t, s.Value.Set(42))
		return refused
	})
	require.ErrorIs(t, mgr.Register(ctx, s), refused)
	hooks.onOpen(nil)
	require.False(t, s.IsLive())

	require.NoError(t, mgr.Register(ctx, s))
	require.Eventually(t, func() bool { return fe.openCount() == 1 }, eventually, tick)
	c, state := fe.open(0)
	require.Equal(t, 42.0, state["value"])

	require.NoError(t, s.Value.Set(8))
	require.Eventually(t, func() bool { return len(fe.messages(c.ID())) == 1 }, eventually, tick)
	require.Equal(t, map[string]any{"value": 8.0}, decode(t, fe.messages(c.ID())[0])["state"])
}

type peer struct {
	*Model
	Peer *Property[*peer]
}

func TestManager_ReferenceCycle(t *testing.T) {
	mgr, fe := newSession(t)
	ctx := context.Background()

	spec := ControlSpec("PeerModel", "PeerView")
	a := &peer{Model: NewModel(mgr, spec)}
	b := &peer{Model: NewModel(mgr, spec)}
	a.Peer = Attach(a.Model, "peer", proptype.Reference[*peer]("peer"), b)
	b.Peer = Attach(b.Model, "peer", proptype.Reference[*peer]("peer"), a)

	done := make(chan error, 1)
	go func() { done <- mgr.Register(ctx, a) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrReferenceCycle)
		require.ErrorIs(t, err, proptype.ErrUnresolvable)
	case <-time.After(eventually):
		t.Fatal("registration of a cycle did not return")
	}
	require.False(t, a.IsLive())
	require.False(t, b.IsLive())
	require.Zero(t, fe.openCount())

	t.Run("when a widget references itself, the cycle is reported", func(t *testing.T) {
		self := &peer{Model: NewModel(mgr, spec)}
		self.Peer = Attach(self.Model, "peer", proptype.Reference[*peer]("peer"), self)
		require.ErrorIs(t, mgr.Register(ctx, self), ErrReferenceCycle)
	})

	t.Run("when the other end is already live, the reference resolves", func(t *testing.T) {
		live := newSlider(mgr)
		require.NoError(t, mgr.Register(ctx, live))

		m := NewModel(mgr, ControlSpec("BoxModel", "BoxView"))
		parent := &box{
			Model: m,
			Child: Attach(m, "child", proptype.Reference[*slider]("slider"), live),
		}
		require.NoError(t, mgr.Register(ctx, parent))
	})
}

func TestProperty_SetDoesNotHoldReaders(t *testing.T) {
	mgr, fe, hooks := newHookedSession(t)
	ctx := context.Background()

	first := newSlider(mgr)
	m := NewModel(mgr, ControlSpec("BoxModel", "BoxView"))
	parent := &box{
		Model: m,
		Child: Attach(m, "child", proptype.Reference[*slider]("slider"), first),
	}
	require.NoError(t, mgr.Register(ctx, parent))

	second := newSlider(mgr)
	seen := make(chan *slider, 1)
	hooks.onOpen(func() error {
		got := make(chan *slider, 1)
		go func() { got <- parent.Child.Get() }()
		select {
		case v := <-got:
			seen <- v
		case <-time.After(500 * time.Millisecond):
			seen <- nil
		}
		return nil
	})
	require.NoError(t, parent.Child.Set(second))
	hooks.onOpen(nil)

	require.Same(t, first, <-seen, "the old value is readable while the new one registers")
	require.Same(t, second, parent.Child.Get())
	require.True(t, second.IsLive())

	require.Eventually(t, func() bool { return len(fe.messages(parent.ID())) == 1 }, eventually, tick)
	update := decode(t, fe.messages(parent.ID())[0])
	require.Equal(t, map[string]any{"child": "IPY_MODEL_" + second.ID()}, update["state"])
}

type MockComms struct {
	m mock.Mock
}

func (c *MockComms) Open(_ context.Context, target string, _ comm.Message, _ comm.Handler) (comm.Comm, error) {
	return nil, c.m.Called(target).Error(0)
}

func (c *MockComms) RegisterTarget(target string, fn comm.OpenFunc) error {
	return c.m.Called(target, fn).Error(0)
}

func (c *MockComms) UnregisterTarget(target string) {
	c.m.Called(target)
}

func TestNewManager_Targets(t *testing.T) {
	t.Run("when both targets are free, both are registered", func(t *testing.T) {
		comms := &MockComms{}
		comms.m.On("RegisterTarget", TargetWidget, mock.Anything).Return(nil).Once()
		comms.m.On("RegisterTarget", TargetControl, mock.Anything).Return(nil).Once()

		_, err := NewManager(comms)
		require.NoError(t, err)
		comms.m.AssertExpectations(t)
	})

	t.Run("when the control target is taken, the widget target is released", func(t *testing.T) {
		taken := errors.New("taken")
		comms := &MockComms{}
		comms.m.On("RegisterTarget", TargetWidget, mock.Anything).Return(nil).Once()
		comms.m.On("RegisterTarget", TargetControl, mock.Anything).Return(taken).Once()
		comms.m.On("UnregisterTarget", TargetWidget).Return().Once()

		_, err := NewManager(comms)
		require.ErrorIs(t, err, taken)
		comms.m.AssertExpectations(t)
	})

	t.Run("when the widget target is taken, nothing else is registered", func(t *testing.T) {
		taken := errors.New("taken")
		comms := &MockComms{}
		comms.m.On("RegisterTarget", TargetWidget, mock.Anything).Return(taken).Once()

		_, err := NewManager(comms)
		require.ErrorIs(t, err, taken)
		comms.m.AssertExpectations(t)
		comms.m.AssertNotCalled(t, "RegisterTarget", TargetControl, mock.Anything)
	})
}
