package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgermeta/internal/config"
)

type handlerFunc func(command string, params map[string]any) (json.RawMessage, error)

type fakeConn struct {
	handler handlerFunc
	stream  chan json.RawMessage
	done    chan struct{}
	once    sync.Once
}

func newFakeConn(h handlerFunc) *fakeConn {
	return &fakeConn{
		handler: h,
		stream:  make(chan json.RawMessage, 8),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) Request(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}
	return c.handler(command, params)
}

func (c *fakeConn) Stream() <-chan json.RawMessage { return c.stream }
func (c *fakeConn) Done() <-chan struct{}          { return c.done }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type fakeNetwork struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	calls []string
}

func newFakeNetwork(handlers map[string]handlerFunc) *fakeNetwork {
	n := &fakeNetwork{conns: make(map[string]*fakeConn)}
	for url, h := range handlers {
		url, h := url, h
		n.conns[url] = newFakeConn(func(command string, params map[string]any) (json.RawMessage, error) {
			n.mu.Lock()
			n.calls = append(n.calls, url)
			n.mu.Unlock()
			return h(command, params)
		})
	}
	return n
}

func (n *fakeNetwork) dial(ctx context.Context, url string) (Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.conns[url]
	if !ok {
		return nil, errors.New("dial tcp: connection refused")
	}
	return c, nil
}

func (n *fakeNetwork) called() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func sources(urls ...string) []config.SourceConfig {
	out := make([]config.SourceConfig, len(urls))
	for i, u := range urls {
		out[i] = config.SourceConfig{URL: u, Timeout: time.Second}
	}
	return out
}

func ok(body string) handlerFunc {
	return func(string, map[string]any) (json.RawMessage, error) {
		return json.RawMessage(body), nil
	}
}

func failing(err error) handlerFunc {
	return func(string, map[string]any) (json.RawMessage, error) {
		return nil, err
	}
}

func TestNewPool_NoSources(t *testing.T) {
	_, err := NewPool(nil, PoolOptions{})
	assert.ErrorIs(t, err, ErrNoNodeConfigured)
}

func TestPool_FailoverToNextNode(t *testing.T) {
	network := newFakeNetwork(map[string]handlerFunc{
		"ws://a": failing(errors.New("i/o timeout")),
		"ws://b": ok(`{"ledger_index": 100}`),
	})
	pool, err := NewPool(sources("ws://a", "ws://b"), PoolOptions{Dialer: network.dial})
	require.NoError(t, err)

	resp, err := pool.Request(context.Background(), Request{Command: "ledger", Node: "ws://a"})
	require.NoError(t, err)
	assert.Equal(t, "ws://b", resp.Node)
	assert.Equal(t, []string{"ws://a", "ws://b"}, network.called())

	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats[0].Failures)
	assert.Equal(t, "i/o timeout", stats[0].LastError)
	assert.False(t, stats[0].CooldownUntil.IsZero())
	assert.Equal(t, uint64(0), stats[1].Failures)
}

func TestPool_RetryableRemoteErrorFailsOver(t *testing.T) {
	network := newFakeNetwork(map[string]handlerFunc{
		"ws://a": failing(&RemoteError{Command: "ledger", Code: "lgrNotFound"}),
		"ws://b": ok(`{}`),
	})
	pool, err := NewPool(sources("ws://a", "ws://b"), PoolOptions{Dialer: network.dial})
	require.NoError(t, err)

	resp, err := pool.Request(context.Background(), Request{Command: "ledger", Node: "ws://a"})
	require.NoError(t, err)
	assert.Equal(t, "ws://b", resp.Node)
}

func TestPool_PermanentRemoteErrorReturnsImmediately(t *testing.T) {
	network := newFakeNetwork(map[string]handlerFunc{
		"ws://a": failing(&RemoteError{Command: "ledger", Code: "invalidParams"}),
		"ws://b": ok(`{}`),
	})
	pool, err := NewPool(sources("ws://a", "ws://b"), PoolOptions{Dialer: network.dial})
	require.NoError(t, err)

	_, err = pool.Request(context.Background(), Request{Command: "ledger", Node: "ws://a"})
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "invalidParams", remote.Code)
	assert.Equal(t, []string{"ws://a"}, network.called())
}

func TestPool_NoReachableNode(t *testing.T) {
	network := newFakeNetwork(map[string]handlerFunc{
		"ws://a": failing(errors.New("connection reset by peer")),
	})
	pool, err := NewPool(sources("ws://a", "ws://unreachable"), PoolOptions{Dialer: network.dial})
	require.NoError(t, err)

	_, err = pool.Request(context.Background(), Request{Command: "ledger"})
	assert.ErrorIs(t, err, ErrNoReachableNode)
}

func TestPool_CoolingNodesAreTriedLast(t *testing.T) {
	now := time.Unix(1000, 0)
	network := newFakeNetwork(map[string]handlerFunc{
		"ws://a": ok(`{}`),
		"ws://b": ok(`{}`),
	})
	pool, err := NewPool(sources("ws://a", "ws://b"), PoolOptions{
		Dialer:   network.dial,
		Cooldown: time.Minute,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	pool.markFailure(pool.nodes[0], errors.New("timeout"))

	for i := 0; i < 4; i++ {
		resp, err := pool.Request(context.Background(), Request{Command: "server_info"})
		require.NoError(t, err)
		assert.Equal(t, "ws://b", resp.Node)
	}

	now = now.Add(2 * time.Minute)
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		resp, err := pool.Request(context.Background(), Request{Command: "server_info"})
		require.NoError(t, err)
		seen[resp.Node] = true
	}
	assert.True(t, seen["ws://a"], "node should be selected again after cooldown")
}

func TestPool_Subscribe(t *testing.T) {
	network := newFakeNetwork(map[string]handlerFunc{
		"ws://a": ok(`{"ledger_index": 10, "ledger_hash": "H10", "ledger_time": 0, "txn_count": 1}`),
	})
	pool, err := NewPool(sources("ws://a"), PoolOptions{Dialer: network.dial})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := pool.Subscribe(ctx)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, uint32(10), first.LedgerIndex)
	assert.Equal(t, "ws://a", first.Node)
	assert.Equal(t, int64(rippleEpoch), first.CloseTime.Unix())

	conn := network.conns["ws://a"]
	conn.stream <- json.RawMessage(`{"type": "serverStatus"}`)
	conn.stream <- json.RawMessage(`{"type": "ledgerClosed", "ledger_index": 11, "ledger_hash": "H11", "txn_count": 3}`)

	next := <-ch
	assert.Equal(t, uint32(11), next.LedgerIndex)
	assert.Equal(t, 3, next.TxCount)

	close(conn.stream)
	_, open := <-ch
	assert.False(t, open, "channel closes with the connection stream")
}

func TestPool_ResubscribeOnLiveConnection(t *testing.T) {
	network := newFakeNetwork(map[string]handlerFunc{
		"ws://a": ok(`{"ledger_index": 10, "ledger_hash": "H10", "txn_count": 1}`),
	})
	pool, err := NewPool(sources("ws://a"), PoolOptions{Dialer: network.dial})
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first, err := pool.Subscribe(firstCtx)
	require.NoError(t, err)
	<-first

	cancelFirst()
	for range first {
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	second, err := pool.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), (<-second).LedgerIndex)

	conn := network.conns["ws://a"]
	go func() {
		for i := 11; i <= 30; i++ {
			conn.stream <- json.RawMessage(fmt.Sprintf(`{"type": "ledgerClosed", "ledger_index": %d}`, i))
		}
	}()

	for i := 11; i <= 30; i++ {
		select {
		case closed := <-second:
			assert.Equal(t, uint32(i), closed.LedgerIndex)
		case <-time.After(2 * time.Second):
			t.Fatalf("ledger %d never reached the new subscription", i)
		}
	}
}
