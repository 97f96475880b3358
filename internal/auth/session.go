package auth

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/sageships/DevPorts/internal/store"
)

const sessionName = "devports_auth"

// Manager 负责处理控制 API 的登录会话。
type Manager struct {
	store  *store.Store
	cookie sessions.Store
}

// NewManager 使用提供的会话密钥创建 Manager。
func NewManager(store *store.Store, sessionKey []byte) *Manager {
	cookieStore := sessions.NewCookieStore(sessionKey)
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   60 * 60 * 12, // 12 小时
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	return &Manager{
		store:  store,
		cookie: cookieStore,
	}
}

// Authenticate 校验凭证并写入会话信息。
func (m *Manager) Authenticate(w http.ResponseWriter, r *http.Request, username, password string) error {
	user, err := m.store.Authenticate(r.Context(), username, password)
	if err != nil {
		return err
	}
	session, _ := m.cookie.Get(r, sessionName)
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	return session.Save(r, w)
}

// Logout 清理当前会话。
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	session, _ := m.cookie.Get(r, sessionName)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// Middleware 确保请求具备已登录用户。
// 调用方是原生外壳而非浏览器页面，未登录时返回 401 而不是重定向。
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := m.cookie.Get(r, sessionName)
		if err != nil {
			unauthorised(w)
			return
		}
		if _, ok := session.Values["user_id"]; !ok {
			unauthorised(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Username 获取当前会话的用户名。
func (m *Manager) Username(r *http.Request) string {
	session, err := m.cookie.Get(r, sessionName)
	if err != nil {
		return ""
	}
	if uname, ok := session.Values["username"].(string); ok {
		return uname
	}
	return ""
}

func unauthorised(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorised"})
}
