package xrpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ledgermeta/internal/config"
	"ledgermeta/internal/metrics"
)

// Request is a single command routed through the pool
type Request struct {
	Command string
	Params  map[string]any
	// Node is tried first when set
	Node string
}

// Response carries the raw result and the node that produced it
type Response struct {
	Result json.RawMessage
	Node   string
}

// Requester issues commands against one or more nodes
type Requester interface {
	Request(ctx context.Context, req Request) (*Response, error)
}

// PoolOptions tunes the pool's failure handling
type PoolOptions struct {
	Dialer   Dialer
	Cooldown time.Duration
	Now      func() time.Time
}

// NodeStats is a point-in-time view of a node's health
type NodeStats struct {
	URL           string        `json:"url"`
	Requests      uint64        `json:"requests"`
	Failures      uint64        `json:"failures"`
	Latency       time.Duration `json:"latency"`
	LastError     string        `json:"last_error,omitempty"`
	CooldownUntil time.Time     `json:"cooldown_until,omitempty"`
}

// Node is one upstream server with a lazily dialled connection
type Node struct {
	url     string
	timeout time.Duration
	dial    Dialer

	mu    sync.Mutex
	conn  Conn
	stats NodeStats
}

// URL returns the node's endpoint
func (n *Node) URL() string {
	return n.url
}

func (n *Node) connect(ctx context.Context) (Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		select {
		case <-n.conn.Done():
			n.conn = nil
		default:
			return n.conn, nil
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	conn, err := n.dial(dialCtx, n.url)
	if err != nil {
		return nil, err
	}
	n.conn = conn
	return conn, nil
}

func (n *Node) request(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	conn, err := n.connect(ctx)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	start := time.Now()
	result, err := conn.Request(reqCtx, command, params)
	metrics.NodeRequestDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	if err != nil {
		var remote *RemoteError
		if !errors.As(err, &remote) {
			// transport failure, force a fresh connection next time
			n.dropConn(conn)
		}
		return nil, err
	}

	n.mu.Lock()
	elapsed := time.Since(start)
	if n.stats.Latency == 0 {
		n.stats.Latency = elapsed
	} else {
		n.stats.Latency = (n.stats.Latency*4 + elapsed) / 5
	}
	n.mu.Unlock()

	return result, nil
}

func (n *Node) dropConn(conn Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == conn {
		n.conn = nil
	}
	conn.Close()
}

func (n *Node) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}

// Pool routes requests across the configured nodes with failover
type Pool struct {
	nodes    []*Node
	cooldown time.Duration
	now      func() time.Time

	current uint64
}

// NewPool creates a pool over sources
func NewPool(sources []config.SourceConfig, opts PoolOptions) (*Pool, error) {
	if len(sources) == 0 {
		return nil, ErrNoNodeConfigured
	}
	if opts.Dialer == nil {
		opts.Dialer = Dial
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	nodes := make([]*Node, 0, len(sources))
	for _, s := range sources {
		timeout := s.Timeout
		if timeout == 0 {
			timeout = 20 * time.Second
		}
		nodes = append(nodes, &Node{
			url:     s.URL,
			timeout: timeout,
			dial:    opts.Dialer,
			stats:   NodeStats{URL: s.URL},
		})
	}
	metrics.HealthyNodes.Set(float64(len(nodes)))

	return &Pool{
		nodes:    nodes,
		cooldown: opts.Cooldown,
		now:      opts.Now,
	}, nil
}

// candidates orders nodes for one request: the preferred node, then healthy
// nodes in round-robin order, then nodes still cooling down.
func (p *Pool) candidates(preferred string) []*Node {
	start := int(atomic.AddUint64(&p.current, 1)-1) % len(p.nodes)
	now := p.now()

	ordered := make([]*Node, 0, len(p.nodes))
	var cooling []*Node
	for _, n := range p.nodes {
		if n.url == preferred {
			ordered = append(ordered, n)
		}
	}
	for i := 0; i < len(p.nodes); i++ {
		n := p.nodes[(start+i)%len(p.nodes)]
		if n.url == preferred {
			continue
		}
		n.mu.Lock()
		inCooldown := now.Before(n.stats.CooldownUntil)
		n.mu.Unlock()
		if inCooldown {
			cooling = append(cooling, n)
			continue
		}
		ordered = append(ordered, n)
	}
	return append(ordered, cooling...)
}

// Request sends req to the first node able to answer it
func (p *Pool) Request(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for i, node := range p.candidates(req.Node) {
		if i > 0 {
			metrics.NodeFailovers.Inc()
		}

		result, err := node.request(ctx, req.Command, req.Params)
		if err == nil {
			p.markSuccess(node)
			return &Response{Result: result, Node: node.url}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var remote *RemoteError
		if errors.As(err, &remote) && !remote.Recoverable() {
			p.markSuccess(node)
			return nil, err
		}

		p.markFailure(node, err)
		slog.Warn("Node request failed, trying next node",
			"node", node.url,
			"command", req.Command,
			"error", err,
		)
		lastErr = err
	}

	metrics.ErrorsTotal.WithLabelValues("pool").Inc()
	return nil, fmt.Errorf("%w for %s: %w", ErrNoReachableNode, req.Command, lastErr)
}

// Select returns the next node that accepts a connection
func (p *Pool) Select(ctx context.Context) (*Node, Conn, error) {
	var lastErr error
	for _, node := range p.candidates("") {
		conn, err := node.connect(ctx)
		if err == nil {
			return node, conn, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		p.markFailure(node, err)
		lastErr = err
	}
	return nil, nil, fmt.Errorf("%w: %w", ErrNoReachableNode, lastErr)
}

func (p *Pool) markSuccess(n *Node) {
	n.mu.Lock()
	n.stats.Requests++
	n.stats.CooldownUntil = time.Time{}
	n.mu.Unlock()
	p.updateHealthy()
}

func (p *Pool) markFailure(n *Node, err error) {
	n.mu.Lock()
	n.stats.Requests++
	n.stats.Failures++
	n.stats.LastError = err.Error()
	n.stats.CooldownUntil = p.now().Add(p.cooldown)
	n.mu.Unlock()
	p.updateHealthy()
}

func (p *Pool) updateHealthy() {
	now := p.now()
	healthy := 0
	for _, n := range p.nodes {
		n.mu.Lock()
		if !now.Before(n.stats.CooldownUntil) {
			healthy++
		}
		n.mu.Unlock()
	}
	metrics.HealthyNodes.Set(float64(healthy))
}

// Stats returns a snapshot of every node's health
func (p *Pool) Stats() []NodeStats {
	out := make([]NodeStats, 0, len(p.nodes))
	for _, n := range p.nodes {
		n.mu.Lock()
		out = append(out, n.stats)
		n.mu.Unlock()
	}
	return out
}

// Close closes every open connection. Errors are ignored so that as many
// connections as possible get closed.
func (p *Pool) Close() {
	for _, n := range p.nodes {
		n.close()
	}
	slog.Debug("Closed all node connections")
}
