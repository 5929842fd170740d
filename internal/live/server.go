package live

import (
	"context"
	"time"

	"go.uber.org/zap"

	network "github.com/lk2023060901/shout-live-go/internal/network"
	"github.com/lk2023060901/shout-live-go/internal/network/acceptor"
	"github.com/lk2023060901/shout-live-go/internal/network/session"
	"github.com/lk2023060901/shout-live-go/pkg/log"
	"github.com/lk2023060901/shout-live-go/pkg/util/conc"
	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

const (
	defaultFanoutPoolSize = 16
	fanoutWorkerExpiry    = time.Minute
)

// Stats 是注册表的诊断快照。
type Stats struct {
	Members     int `json:"members"`
	Connections int `json:"connections"`
}

type options struct {
	fanoutPoolSize int
}

// Option 配置 Server。
type Option func(*options)

// WithFanoutPoolSize 设置广播扇出协程池容量。
func WithFanoutPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.fanoutPoolSize = n
		}
	}
}

// Server 把注册表、广播与命令分发组装在一起，并作为接入层的 Handler 接收连接事件。
type Server struct {
	log.Binder

	members     *Directory
	presence    *PresenceStore
	registry    *Registry
	broadcaster *Broadcaster
	dispatcher  *Dispatcher
	pool        *conc.Pool[int]
}

var _ acceptor.Handler = (*Server)(nil)

func NewServer(opts ...Option) (*Server, error) {
	o := &options{fanoutPoolSize: defaultFanoutPoolSize}
	for _, opt := range opts {
		opt(o)
	}

	members := NewDirectory()
	presence := NewPresenceStore()
	registry := NewRegistry(members, presence)
	pool := conc.NewPool[int](o.fanoutPoolSize,
		conc.WithConcealPanic(true),
		conc.WithExpiryDuration(fanoutWorkerExpiry),
	)
	broadcaster := NewBroadcaster(registry, members, pool)
	dispatcher, err := NewDispatcher(members, presence, broadcaster)
	if err != nil {
		pool.Release()
		return nil, err
	}

	return &Server{
		members:     members,
		presence:    presence,
		registry:    registry,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		pool:        pool,
	}, nil
}

// SetLogger 同时绑定到内部组件。
func (s *Server) SetLogger(logger *log.MLogger) {
	s.Binder.SetLogger(logger)
	s.broadcaster.SetLogger(logger.With(log.FieldComponent("broadcaster")))
}

// OnConnected 实现 acceptor.Handler。
func (s *Server) OnConnected(sess session.Session) error {
	member, err := s.registry.Join(sess.SessionID(), sess)
	if err != nil {
		return err
	}
	s.Logger().Debug("member joined",
		log.FieldSessionID(member.ID),
		log.FieldConnID(sess.ID()),
		zap.String("name", member.Name))
	return nil
}

// OnMessage 实现 acceptor.Handler。
func (s *Server) OnMessage(sess session.Session, text string) {
	err := s.dispatcher.Dispatch(sess.Context(), sess.SessionID(), text)
	if err == nil {
		return
	}
	if merr.GetErrorType(err) == merr.InputError {
		s.Logger().Debug("rejected command", log.FieldSessionID(sess.SessionID()), zap.Error(err))
		return
	}
	s.Logger().Warn("dispatch failed", log.FieldSessionID(sess.SessionID()), zap.Error(err))
}

// OnClosed 实现 acceptor.Handler。
func (s *Server) OnClosed(sess session.Session, err error) {
	left := s.registry.Leave(sess.SessionID(), sess)
	s.Logger().Debug("member left",
		log.FieldSessionID(sess.SessionID()),
		log.FieldConnID(sess.ID()),
		zap.Bool("removed", left),
		zap.Error(err))
}

// OnError 实现 acceptor.Handler。
func (s *Server) OnError(sess session.Session, stage network.Stage, err error) {
	fields := []zap.Field{zap.String("stage", string(stage)), zap.Error(err)}
	if sess != nil {
		fields = append(fields, log.FieldSessionID(sess.SessionID()), log.FieldConnID(sess.ID()))
	}
	s.Logger().With().WithRateGroup("live.server.error", 1, 60).RatedWarn(1, "connection error", fields...)
}

// Broadcast 原样广播一段文本（不附加发送方前缀）。
func (s *Server) Broadcast(ctx context.Context, text string) int {
	return s.broadcaster.Broadcast(ctx, text)
}

// Stats 返回在线成员与连接数量。
func (s *Server) Stats() Stats {
	return Stats{
		Members:     s.registry.Len(),
		Connections: s.registry.ConnectionCount(),
	}
}

// Members 返回所有在线成员。
func (s *Server) Members() []Member {
	return s.registry.Members()
}

// Close 释放扇出协程池。之后的广播在调用方协程中串行投递。
func (s *Server) Close() {
	s.pool.Release()
}
