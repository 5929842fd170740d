// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxLogKeyType struct{}

var ctxLogKey = ctxLogKeyType{}

func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// With 基于全局 Logger 创建携带字段的 MLogger。
// 全局 Logger 为包级函数预留了一层 caller skip，这里需要抵消。
func With(fields ...zap.Field) *MLogger {
	return &MLogger{
		Logger: L().WithOptions(zap.AddCallerSkip(-1)).With(fields...),
	}
}

// WithFields 返回一个 ctx，其 Logger 在原有字段之外附加 fields。
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, ctxLogKey, Ctx(ctx).With(fields...))
}

// WithSession 在 ctx 上附加会话标识与连接 ID。
func WithSession(ctx context.Context, sessionID string, connID uint64) context.Context {
	return WithFields(ctx, FieldSessionID(sessionID), FieldConnID(connID))
}

// NewIntentContext 开启一个 otel span，并把 role/intent/traceID 写入 ctx 的 Logger。
// 调用方负责结束返回的 span。
func NewIntentContext(parent context.Context, name string, intent string) (context.Context, trace.Span) {
	intentCtx, span := otel.Tracer(name).Start(parent, intent)
	intentCtx = WithFields(intentCtx,
		zap.String("role", name),
		zap.String("intent", intent),
		zap.String("traceID", span.SpanContext().TraceID().String()))
	return intentCtx, span
}

// Ctx 返回 ctx 上的 Logger，没有时返回全局 Logger。
func Ctx(ctx context.Context) *MLogger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLogKey).(*MLogger); ok {
			return l
		}
	}
	return With()
}
