package live

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/shout-live-go/internal/network/session"
	"github.com/lk2023060901/shout-live-go/pkg/log"
	"github.com/lk2023060901/shout-live-go/pkg/metrics"
	"github.com/lk2023060901/shout-live-go/pkg/util/conc"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

// FormatMessage 生成 "[label] message" 形式的出站文本。
func FormatMessage(label string, message string) string {
	return "[" + label + "] " + message
}

// Broadcaster 负责单播与全量广播。
//
// 发送失败策略：以 CloseProtocolError 关闭该连接、把它移出注册表，然后继续投递其余连接；
// 单个连接的失败不会向调用方返回错误。
type Broadcaster struct {
	log.Binder

	registry *Registry
	members  *Directory
	pool     *conc.Pool[int]
}

func NewBroadcaster(registry *Registry, members *Directory, pool *conc.Pool[int]) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		members:  members,
		pool:     pool,
	}
}

// SendTo 把 "[senderLabel] message" 发给 target 的所有连接，返回成功投递的连接数。
// target 没有连接时什么也不做。
func (b *Broadcaster) SendTo(_ context.Context, target string, senderLabel string, message string) int {
	conns := b.registry.Connections(target)
	if len(conns) == 0 {
		return 0
	}
	return b.deliver(target, conns, FormatMessage(senderLabel, message))
}

// Broadcast 把已格式化的文本发给快照中每个标识的每条连接，返回成功投递的连接数。
//
// 不同标识通过协程池并发投递，Broadcast 等待全部完成后返回。
// 协程池不可用时退化为在当前协程中串行投递。
func (b *Broadcaster) Broadcast(ctx context.Context, message string) int {
	metrics.LiveBroadcasts.Inc()

	recipients := b.registry.Snapshot()
	if len(recipients) == 0 {
		return 0
	}

	futures := make([]*conc.Future[int], 0, len(recipients))
	for _, rc := range recipients {
		rc := rc
		futures = append(futures, b.pool.Submit(func() (int, error) {
			return b.deliver(rc.ID, rc.Conns, message), nil
		}))
	}

	delivered := 0
	for i, future := range futures {
		n, err := future.Await()
		if err != nil {
			if errors.Is(err, merr.ErrServiceOverloaded) {
				n = b.deliver(recipients[i].ID, recipients[i].Conns, message)
			} else {
				log.Ctx(ctx).Warn("broadcast delivery failed", log.FieldSessionID(recipients[i].ID), zap.Error(err))
			}
		}
		delivered += n
	}
	return delivered
}

// BroadcastFrom 以发送方的显示名格式化后广播。
//
// 发送方已被驱逐（或从未加入）时丢弃消息：会话标识即 Cookie 值，不能作为标签外泄。
func (b *Broadcaster) BroadcastFrom(ctx context.Context, sender string, message string) int {
	name, ok := b.members.Lookup(sender)
	if !ok {
		log.Ctx(ctx).Debug("drop message from unknown sender", zap.Int("length", len(message)))
		return 0
	}
	return b.Broadcast(ctx, FormatMessage(name, message))
}

func (b *Broadcaster) deliver(sid string, conns []session.Session, text string) int {
	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(text); err != nil {
			metrics.LiveSendFailures.Inc()
			b.Logger().With().WithRateGroup("live.broadcaster.send", 1, 60).
				RatedWarn(1, "send failed, closing connection",
					log.FieldSessionID(sid), log.FieldConnID(conn.ID()), zap.Error(err))
			_ = conn.Close(session.CloseProtocolError)
			b.registry.Leave(sid, conn)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		metrics.LiveDelivered.Add(float64(delivered))
	}
	return delivered
}
