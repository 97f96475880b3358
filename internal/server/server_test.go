package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sageships/DevPorts/internal/config"
	"github.com/sageships/DevPorts/internal/models"
	"github.com/sageships/DevPorts/internal/server"
	"github.com/sageships/DevPorts/internal/store"
)

type fakeProber struct {
	lines []string
}

func (f fakeProber) Probe(ctx context.Context) ([]string, error) {
	return f.lines, nil
}

type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	cfg := &config.Config{
		Addr:                 "127.0.0.1:0",
		AdminUser:            "admin",
		AdminPassword:        "secret-password",
		SessionKey:           []byte("0123456789abcdef0123456789abcdef"),
		CSRFKey:              []byte("abcdef0123456789abcdef0123456789"),
		ProbeTimeout:         time.Second,
		KillRescanDelay:      time.Millisecond,
		AllowedPorts:         []int{3000, 5432},
		ExcludedProcessNames: []string{"ControlCe"},
	}

	st, err := store.New(filepath.Join(t.TempDir(), "devports.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassword); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	// PID 取自 pid_max 之外，避免命中测试机器上的真实进程。
	prober := fakeProber{lines: []string{
		"COMMAND     PID USER   FD   TYPE             DEVICE SIZE/OFF NODE NAME",
		"node    4190001  dev   23u  IPv4 0x0      0t0  TCP *:3000 (LISTEN)",
		"ControlCe     1  dev   10u  IPv4 0x0      0t0  TCP *:5432 (LISTEN)",
	}}

	srv, err := server.NewWithProber(cfg, st, prober)
	if err != nil {
		t.Fatalf("server init: %v", err)
	}
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &apiClient{
		t:    t,
		base: ts.URL,
		http: &http.Client{Jar: jar},
	}
}

func (c *apiClient) fetchCSRF() {
	c.t.Helper()
	resp, err := c.http.Get(c.base + "/api/csrf")
	if err != nil {
		c.t.Fatalf("get csrf: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.t.Fatalf("decode csrf: %v", err)
	}
	c.csrf = body.Token
}

func (c *apiClient) do(method, path string, payload interface{}) *http.Response {
	c.t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			c.t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.base+path, &body)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *apiClient) login() {
	c.t.Helper()
	c.fetchCSRF()
	resp := c.do(http.MethodPost, "/api/login", map[string]string{
		"username": "admin",
		"password": "secret-password",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status = %d", resp.StatusCode)
	}
}

// waitForListeners 轮询直到首轮异步扫描发布了期望数量的条目。
func (c *apiClient) waitForListeners(want int) []models.Listener {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp := c.do(http.MethodGet, "/api/listeners", nil)
		var listeners []models.Listener
		if resp.StatusCode == http.StatusOK {
			if err := json.NewDecoder(resp.Body).Decode(&listeners); err != nil {
				resp.Body.Close()
				c.t.Fatalf("decode listeners: %v", err)
			}
		}
		resp.Body.Close()
		if len(listeners) == want {
			return listeners
		}
		if time.Now().After(deadline) {
			c.t.Fatalf("timed out waiting for %d listeners, last saw %+v", want, listeners)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestListenersRequireLogin(t *testing.T) {
	c := newTestAPI(t)
	resp, err := c.http.Get(c.base + "/api/listeners")
	if err != nil {
		t.Fatalf("get listeners: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", resp.StatusCode)
	}
}

func TestListenersEndpoint(t *testing.T) {
	c := newTestAPI(t)
	c.login()

	listeners := c.waitForListeners(1)
	l := listeners[0]
	if l.Port != 3000 || l.DisplayName != "Node.js" || l.Overridden {
		t.Fatalf("unexpected listener: %+v", l)
	}
}

func TestOverrideNameEndpoints(t *testing.T) {
	c := newTestAPI(t)
	c.login()
	c.waitForListeners(1)

	resp := c.do(http.MethodPut, "/api/listeners/3000/name", map[string]string{"name": "My API"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set name status = %d", resp.StatusCode)
	}

	listeners := c.waitForListeners(1)
	if !listeners[0].Overridden || listeners[0].DisplayName != "My API" {
		t.Fatalf("override not reflected: %+v", listeners[0])
	}

	resp = c.do(http.MethodDelete, "/api/listeners/3000/name", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear name status = %d", resp.StatusCode)
	}

	listeners = c.waitForListeners(1)
	if listeners[0].Overridden || listeners[0].DisplayName != "Node.js" {
		t.Fatalf("cleared override should fall back to classifier: %+v", listeners[0])
	}
}

func TestRescanEndpoint(t *testing.T) {
	c := newTestAPI(t)
	c.login()

	resp := c.do(http.MethodPost, "/api/rescan", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rescan status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode rescan response: %v", err)
	}
	if body["status"] != "scheduled" {
		t.Fatalf("unexpected rescan response: %v", body)
	}
}

func TestKillUnknownPort(t *testing.T) {
	c := newTestAPI(t)
	c.login()
	c.waitForListeners(1)

	resp := c.do(http.MethodPost, fmt.Sprintf("/api/listeners/%d/kill", 9000), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown port, got %d", resp.StatusCode)
	}
}
