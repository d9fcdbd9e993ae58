package services

import (
	"context"
	"sync"
	"time"

	"fleet-svc/app/clients"
	"fleet-svc/app/domains"
	"fleet-svc/app/metrics"

	"go.uber.org/zap"
)

// DefaultPollInterval is how often the monitor refreshes node snapshots.
const DefaultPollInterval = 3 * time.Minute

// NodeMonitor periodically refreshes every node's resource snapshot and
// inventory. It is the sole writer of node status fields; placement
// only reads them. One unreachable node never delays the others.
type NodeMonitor struct {
	storage  clients.StorageAdapter
	dial     clients.NodeDialer
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewNodeMonitor creates a monitor. interval <= 0 uses the default.
func NewNodeMonitor(storage clients.StorageAdapter, dial clients.NodeDialer, interval time.Duration, logger *zap.Logger) *NodeMonitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &NodeMonitor{
		storage:  storage,
		dial:     dial,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the polling loop. Calling Start on a running monitor is
// a no-op.
func (m *NodeMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.stopped = make(chan struct{})

	go m.run(ctx, m.stopped)
}

func (m *NodeMonitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Stop cancels future ticks. It does not interrupt an in-flight tick;
// it waits for it to finish. Calling Stop on a stopped monitor is a
// no-op.
func (m *NodeMonitor) Stop() {
	m.mu.Lock()
	cancel, stopped := m.cancel, m.stopped
	m.cancel = nil
	m.stopped = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// Running reports whether the polling loop is active.
func (m *NodeMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Check refreshes every node once, fanning out one concurrent attempt
// per node and joining on all of them. Per-node failures are logged and
// contained; the node's prior snapshot stays untouched.
func (m *NodeMonitor) Check(ctx context.Context) {
	nodes, err := m.storage.ListNodes(ctx)
	if err != nil {
		m.logger.Error("failed to load nodes for poll", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for i := range nodes {
		node := nodes[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.checkNode(ctx, &node)
		}()
	}
	wg.Wait()
}

func (m *NodeMonitor) checkNode(ctx context.Context, node *domains.Node) {
	api := m.dial(node)

	query, err := api.Query(ctx)
	if err != nil {
		m.pollFailed(node, err)
		return
	}
	plugins, err := api.Plugins(ctx)
	if err != nil {
		m.pollFailed(node, err)
		return
	}
	games, err := api.Games(ctx)
	if err != nil {
		m.pollFailed(node, err)
		return
	}

	now := time.Now()
	status := domains.NodeStatus{
		LastOnline: &now,
		CPU:        &query.CPU,
		TotalMem:   &query.TotalMem,
		FreeMem:    &query.FreeMem,
		TotalDisk:  &query.TotalDisk,
		FreeDisk:   &query.FreeDisk,
	}
	if err := m.storage.UpdateNodeSnapshot(ctx, node.ID, status, games, plugins); err != nil {
		m.pollFailed(node, err)
		return
	}
	m.logger.Debug("updated node snapshot", zap.String("node", node.ID.String()))
}

func (m *NodeMonitor) pollFailed(node *domains.Node, err error) {
	metrics.PollFailures.Inc()
	m.logger.Error("failed to poll node",
		zap.String("node", node.ID.String()),
		zap.Error(err))
}
