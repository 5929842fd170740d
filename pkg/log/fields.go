package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameSessionID = "sessionID"
	FieldNameConnID    = "connID"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldSessionID 返回一个包含会话标识的 zap 字段。
func FieldSessionID(id string) zap.Field {
	return zap.String(FieldNameSessionID, id)
}

// FieldConnID 返回一个包含连接 ID 的 zap 字段。
func FieldConnID(id uint64) zap.Field {
	return zap.Uint64(FieldNameConnID, id)
}
