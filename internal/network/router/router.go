package router

import (
	"context"
	"strings"
	"sync"

	"github.com/lk2023060901/shout-live-go/pkg/util/merr"
)

// Handler 是框架暴露给业务层的通用文本处理函数签名。
//
// 说明：
//   - sid ：消息发送方的会话标识；
//   - args：命令之后的参数部分（已去除首尾空白）；对兜底处理函数而言为原始文本；
//   - 返回：业务执行失败时的错误，由上层决定如何记录。
type Handler func(ctx context.Context, sid string, args string) error

// Router 维护命令字到处理函数的映射，并负责从原始文本到业务 Handler 的调度。
//
// 典型调用链（服务器侧）：
//  1. 接入层从连接上读出一条文本；
//  2. 上层调用 Router.Handle(ctx, sid, text)；
//  3. 首个以空白分隔的词以 "/" 开头且已注册时，调用对应 Handler；
//  4. 否则将原文交给兜底 Handler（例如聊天广播）。
type Router interface {
	// Register 为命令字注册处理函数。
	//
	// 要求：
	//   - 命令字必须以 "/" 开头且不含空白，匹配时不区分大小写；
	//   - 同一命令字不允许重复注册，重复时返回错误。
	Register(command string, h Handler) error

	// SetFallback 设置未命中任何命令时的兜底处理函数。
	SetFallback(h Handler)

	// Handle 处理一条文本，返回命中的命令字（兜底时为空串）及处理结果。
	Handle(ctx context.Context, sid string, text string) (command string, err error)

	// Commands 返回已注册的命令字。
	Commands() []string
}

// defaultRouter 是 Router 接口的基础实现。
type defaultRouter struct {
	mu       sync.RWMutex
	routes   map[string]Handler
	order    []string
	fallback Handler
}

// 编译期断言：确保 defaultRouter 实现了 Router 接口。
var _ Router = (*defaultRouter)(nil)

// New 创建一个空的 Router。
func New() Router {
	return &defaultRouter{
		routes: make(map[string]Handler),
	}
}

// Register 实现 Router.Register。
func (r *defaultRouter) Register(command string, h Handler) error {
	if h == nil {
		return merr.WrapErrParameterMissing("handler", "command="+command)
	}
	if !strings.HasPrefix(command, "/") || len(command) < 2 || strings.ContainsAny(command, " \t\r\n") {
		return merr.WrapErrParameterInvalidMsg("router: malformed command %q", command)
	}

	key := strings.ToLower(command)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[key]; exists {
		return merr.WrapErrParameterInvalidMsg("router: command %s already registered", key)
	}
	r.routes[key] = h
	r.order = append(r.order, key)
	return nil
}

// SetFallback 实现 Router.SetFallback。
func (r *defaultRouter) SetFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// Handle 实现 Router.Handle。
func (r *defaultRouter) Handle(ctx context.Context, sid string, text string) (string, error) {
	command, args, ok := Split(text)

	r.mu.RLock()
	h, found := r.routes[command]
	fallback := r.fallback
	r.mu.RUnlock()

	if ok && found {
		return command, h(ctx, sid, args)
	}
	if fallback == nil {
		return "", merr.WrapErrParameterInvalidMsg("router: no handler for %q", text)
	}
	return "", fallback(ctx, sid, text)
}

// Commands 实现 Router.Commands。
func (r *defaultRouter) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Split 将文本拆分为小写命令字与参数。
//
// 首个以空白分隔的词不以 "/" 开头时 ok 为 false。
func Split(text string) (command string, args string, ok bool) {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	idx := strings.IndexAny(trimmed, " \t\r\n")
	if idx < 0 {
		return strings.ToLower(trimmed), "", true
	}
	return strings.ToLower(trimmed[:idx]), strings.TrimSpace(trimmed[idx:]), true
}
