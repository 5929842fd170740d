package session

import "go.uber.org/atomic"

// Uint64IDGenerator 分配进程内自增的连接 ID，从 1 开始。
type Uint64IDGenerator struct {
	last atomic.Uint64
}

// Next 返回下一个 ID，并发安全。
func (g *Uint64IDGenerator) Next() uint64 {
	return g.last.Inc()
}
