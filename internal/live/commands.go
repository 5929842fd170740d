package live

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/shout-live-go/internal/network/router"
	"github.com/lk2023060901/shout-live-go/pkg/log"
	"github.com/lk2023060901/shout-live-go/pkg/metrics"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

const (
	LabelInfo  = "INFO"
	LabelError = "ERROR"

	CommandLocation = "/location"
	CommandGlobal   = "/global"
	CommandDistance = "/distance"
	CommandWhoAmI   = "/whoami"

	commandChat = "chat"
)

// Dispatcher 把入站文本路由到位置命令或聊天广播。
//
// 命令的回复（成功或解析错误）只发给发起方自己的连接，不会广播。
type Dispatcher struct {
	router      router.Router
	members     *Directory
	presence    *PresenceStore
	broadcaster *Broadcaster
}

func NewDispatcher(members *Directory, presence *PresenceStore, broadcaster *Broadcaster) (*Dispatcher, error) {
	d := &Dispatcher{
		router:      router.New(),
		members:     members,
		presence:    presence,
		broadcaster: broadcaster,
	}

	routes := map[string]router.Handler{
		CommandLocation: d.handleLocation,
		CommandGlobal:   d.handleGlobal,
		CommandDistance: d.handleDistance,
		CommandWhoAmI:   d.handleWhoAmI,
	}
	for command, h := range routes {
		if err := d.router.Register(command, h); err != nil {
			return nil, err
		}
	}
	d.router.SetFallback(d.handleChat)
	return d, nil
}

// Dispatch 处理一条入站文本。命令解析失败返回输入类错误，此时错误回复已经发给发起方。
func (d *Dispatcher) Dispatch(ctx context.Context, sid string, text string) error {
	command, err := d.router.Handle(ctx, sid, text)
	if command == "" {
		command = commandChat
	}
	result := metrics.SuccessLabel
	if err != nil {
		result = metrics.FailLabel
	}
	metrics.LiveCommands.WithLabelValues(command, result).Inc()
	log.Ctx(ctx).Debug("command handled", zap.String("command", command), zap.String("result", result))
	return err
}

func (d *Dispatcher) handleLocation(ctx context.Context, sid string, args string) error {
	loc, err := d.presence.SetLocation(sid, args)
	if err != nil {
		if errors.Is(err, merr.ErrLocationInvalid) {
			d.broadcaster.SendTo(ctx, sid, LabelError, "Invalid location: "+args)
		}
		return err
	}
	d.broadcaster.SendTo(ctx, sid, LabelInfo, loc.String())
	return nil
}

func (d *Dispatcher) handleGlobal(ctx context.Context, sid string, _ string) error {
	if err := d.presence.ClearLocation(sid); err != nil {
		return err
	}
	d.broadcaster.SendTo(ctx, sid, LabelInfo, "global")
	return nil
}

func (d *Dispatcher) handleDistance(ctx context.Context, sid string, args string) error {
	dist, err := d.presence.SetDistance(sid, args)
	if err != nil {
		if errors.Is(err, merr.ErrDistanceInvalid) {
			d.broadcaster.SendTo(ctx, sid, LabelError, "Invalid request: "+args)
		}
		return err
	}
	d.broadcaster.SendTo(ctx, sid, LabelInfo, "distance "+formatFloat(dist))
	return nil
}

func (d *Dispatcher) handleWhoAmI(ctx context.Context, sid string, _ string) error {
	desc, err := d.presence.Describe(sid)
	if err != nil {
		return err
	}
	name, _ := d.members.Lookup(sid)
	d.broadcaster.SendTo(ctx, sid, LabelInfo, "name="+name+" "+desc)
	return nil
}

func (d *Dispatcher) handleChat(ctx context.Context, sid string, text string) error {
	d.broadcaster.BroadcastFrom(ctx, sid, text)
	return nil
}
