package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type sessionKey struct{}

// SessionCookie 保证每个请求都关联一个会话标识。
//
// 请求未携带名为 name 的 Cookie 时生成新的 UUID，并通过 Set-Cookie 下发；
// 同一浏览器的多个标签页因此共享同一会话标识。
func SessionCookie(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := ""
			if c, err := r.Cookie(name); err == nil {
				sid = c.Value
			}
			if sid == "" {
				sid = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    sid,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sid)))
		})
	}
}

// SessionIDFrom 返回 SessionCookie 放入上下文的会话标识，不存在时为空串。
func SessionIDFrom(ctx context.Context) string {
	sid, _ := ctx.Value(sessionKey{}).(string)
	return sid
}

// SessionIDFromRequest 便于作为接入层的 Identity 使用。
func SessionIDFromRequest(r *http.Request) string {
	return SessionIDFrom(r.Context())
}
