// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 进程级的 Logger、属性与限流器，均可通过 ReplaceGlobals / configureRateLimiter 并发替换。
var (
	_globalL atomic.Pointer[zap.Logger]
	_globalP atomic.Pointer[ZapProperties]
	_globalR atomic.Pointer[rateLimiterBox]
)

// rateLimiterBox 让不同实现的 RateLimiter 可以存入同一个原子指针。
type rateLimiterBox struct {
	rl RateLimiter
}

var _namedRateLimiters sync.Map

// RateLimiter 是限流日志所需的最小接口，由 jaeger utils.RateLimiter 实现。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(float64) bool { return true }

func init() {
	// 未初始化前输出到标准输出，保证进程启动早期的日志不会丢失。
	lg, props, _ := InitLogger(&Config{Level: "debug", Stdout: true}, zap.OnFatal(zapcore.WriteThenPanic))
	ReplaceGlobals(lg, props)
	configureRateLimiter(FromEnv(DefaultEnvPrefix))
}

// InitLogger 按配置构建 zap Logger。
//
// Stdout 与 File 可同时开启；两者都关闭时日志被丢弃。
// 级别 "trace" 视为 debug。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	var outputs []zapcore.WriteSyncer
	if cfg.File.Filename != "" {
		lg, err := newRotatingFile(cfg.File)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout {
		stdout, _, err := zap.Open("stdout")
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, stdout)
	}

	c := *cfg
	if strings.EqualFold(c.Level, "trace") {
		c.Level = "debug"
	}
	lg, props, err := InitLoggerWithWriteSyncer(&c, zap.CombineWriteSyncers(outputs...), opts...)
	if err != nil {
		return nil, nil, err
	}
	return lg.WithOptions(zap.AddCallerSkip(1)), props, nil
}

// InitLoggerWithWriteSyncer 使用指定的 WriteSyncer 构建 Logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}
	core := zapcore.NewCore(cfg.newEncoder(), output, level)
	lg := zap.New(core, append(cfg.buildOptions(output), opts...)...)
	return lg, &ZapProperties{Core: core, Syncer: output, Level: level}, nil
}

// InitTestLogger 构建输出到 t.Log 的 Logger，并替换全局 Logger，测试结束后恢复。
func InitTestLogger(t zaptest.TestingT, level zapcore.Level) *MLogger {
	atom := zap.NewAtomicLevelAt(level)
	lg := zaptest.NewLogger(t, zaptest.Level(atom), zaptest.WrapOptions(zap.AddCaller()))

	prevL, prevP := _globalL.Load(), _globalP.Load()
	ReplaceGlobals(lg, &ZapProperties{Core: lg.Core(), Level: atom})
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { ReplaceGlobals(prevL, prevP) })
	}
	return &MLogger{Logger: lg}
}

func newRotatingFile(cfg FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil && st.IsDir() {
		return nil, errors.Newf("log file %s is a directory", logPath)
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}, nil
}

// L 返回全局 Logger。
func L() *zap.Logger {
	return _globalL.Load()
}

// R 返回全局限流器，未开启限流时永不丢弃日志。
func R() RateLimiter {
	if box := _globalR.Load(); box != nil && box.rl != nil {
		return box.rl
	}
	return nopRateLimiter{}
}

// ReplaceGlobals 替换全局 Logger 及其属性。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalP.Store(props)
}

func Sync() error {
	return L().Sync()
}

// Level 返回全局 Logger 的动态级别，可在运行时调整。
func Level() zap.AtomicLevel {
	return _globalP.Load().Level
}
