// pkg/websocket/pool.go
package websocket

import (
	"net"
	"sync"
)

// ConnectionPool 活跃连接集合，按 IP 计数限流
type ConnectionPool struct {
	config PoolConfig

	mu     sync.RWMutex
	conns  map[string]*Connection
	perIP  map[string]int
	total  int64
	closed bool
}

// NewConnectionPool 创建连接池
func NewConnectionPool(cfg PoolConfig) *ConnectionPool {
	return &ConnectionPool{
		config: cfg,
		conns:  make(map[string]*Connection),
		perIP:  make(map[string]int),
	}
}

// Add 添加连接，超过总数或单 IP 限制时返回错误
func (p *ConnectionPool) Add(conn *Connection) error {
	ip := extractIP(conn.RemoteAddr())

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.config.MaxConnections > 0 && len(p.conns) >= p.config.MaxConnections {
		return ErrPoolFull
	}
	if p.config.MaxConnectionsPerIP > 0 && p.perIP[ip] >= p.config.MaxConnectionsPerIP {
		return ErrMaxConnectionsPerIP
	}

	p.conns[conn.ID()] = conn
	p.perIP[ip]++
	p.total++
	return nil
}

// Remove 移除连接，不存在时返回 false
func (p *ConnectionPool) Remove(connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[connID]
	if !ok {
		return false
	}
	delete(p.conns, connID)

	ip := extractIP(conn.RemoteAddr())
	if p.perIP[ip] <= 1 {
		delete(p.perIP, ip)
	} else {
		p.perIP[ip]--
	}
	return true
}

// Get 获取连接
func (p *ConnectionPool) Get(connID string) (*Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.conns[connID]
	return conn, ok
}

// Range 遍历连接快照，fn 返回 false 时停止
func (p *ConnectionPool) Range(fn func(conn *Connection) bool) {
	for _, conn := range p.snapshot() {
		if !fn(conn) {
			return
		}
	}
}

// Count 当前连接数
func (p *ConnectionPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// IsFull 检查连接池是否已满
func (p *ConnectionPool) IsFull() bool {
	if p.config.MaxConnections <= 0 {
		return false
	}
	return p.Count() >= p.config.MaxConnections
}

// IsIPLimitReached 检查 IP 是否达到连接限制
func (p *ConnectionPool) IsIPLimitReached(ip string) bool {
	if p.config.MaxConnectionsPerIP <= 0 {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.perIP[ip] >= p.config.MaxConnectionsPerIP
}

// Stats 获取统计信息
func (p *ConnectionPool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := Stats{
		TotalConnections:  p.total,
		ActiveConnections: int64(len(p.conns)),
		ConnectionsPerIP:  make(map[string]int, len(p.perIP)),
	}
	for ip, n := range p.perIP {
		stats.ConnectionsPerIP[ip] = n
	}
	return stats
}

// Close 关闭连接池并关闭所有连接，之后 Add 返回 ErrPoolClosed
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	// 连接由各自的读协程从池中移除
	for _, conn := range p.snapshot() {
		_ = conn.Close()
	}
}

func (p *ConnectionPool) snapshot() []*Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conns := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	return conns
}

// extractIP 从 host:port 中提取 IP
func extractIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
