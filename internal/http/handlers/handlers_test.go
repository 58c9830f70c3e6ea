package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/shopadmin/internal/domain/login"
	"github.com/geocoder89/shopadmin/internal/domain/product"
	"github.com/geocoder89/shopadmin/internal/http/flash"
	"github.com/geocoder89/shopadmin/internal/http/handlers"
	"github.com/geocoder89/shopadmin/internal/http/middlewares"
	"github.com/geocoder89/shopadmin/internal/http/templates"
	"github.com/geocoder89/shopadmin/internal/productview"
	"github.com/geocoder89/shopadmin/internal/session"
	"github.com/geocoder89/shopadmin/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAuth struct {
	loginFn func(ctx context.Context, c login.Credentials) login.Outcome
}

func (f fakeAuth) Login(ctx context.Context, c login.Credentials) login.Outcome {
	if f.loginFn != nil {
		return f.loginFn(ctx, c)
	}
	return login.Rejected{Status: "unknown user"}
}

type fakeProductAPI struct {
	listFn   func(ctx context.Context) ([]product.Record, error)
	removeFn func(ctx context.Context, id string) error
}

func (f *fakeProductAPI) ListProducts(ctx context.Context) ([]product.Record, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

func (f *fakeProductAPI) RemoveProduct(ctx context.Context, id string) error {
	if f.removeFn != nil {
		return f.removeFn(ctx, id)
	}
	return nil
}

type fakeViews struct {
	mu       sync.Mutex
	api      productview.API
	ctrls    map[string]*productview.Controller
	remounts []string
}

func newFakeViews(api productview.API) *fakeViews {
	return &fakeViews{api: api, ctrls: map[string]*productview.Controller{}}
}

func (f *fakeViews) Products(ctx context.Context, sid string) *productview.Controller {
	f.mu.Lock()
	c, ok := f.ctrls[sid]
	if !ok {
		c = productview.New(f.api, productview.Options{Logger: quietLogger()})
		f.ctrls[sid] = c
	}
	f.mu.Unlock()

	c.Mount(ctx)
	return c
}

func (f *fakeViews) Remount(sid string) {
	f.mu.Lock()
	c, ok := f.ctrls[sid]
	delete(f.ctrls, sid)
	f.remounts = append(f.remounts, sid)
	f.mu.Unlock()

	if ok {
		c.Close()
	}
}

type fakeTokens struct{}

func (fakeTokens) FormToken(sid string) string { return "tok-" + sid }

func records(n int) []product.Record {
	out := make([]product.Record, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, product.Record{
			ID:        product.ID(strconv.Itoa(i)),
			Name:      fmt.Sprintf("Product %d", i),
			SKU:       fmt.Sprintf("SKU-%03d", i),
			Price:     float64(i) * 1.25,
			Quantity:  i,
			CreatedAt: time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
			Category:  "tools",
		})
	}
	return out
}

const testSID = "sid-1"

type testEnv struct {
	router *gin.Engine
	slice  *session.Slice
	views  *fakeViews
}

func newTestEnv(t *testing.T, initial session.State, auth login.Authenticator, api productview.API) *testEnv {
	t.Helper()

	tmpl, err := templates.Load()
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}

	slice := session.NewSlice(initial, auth, quietLogger())
	views := newFakeViews(api)

	r := gin.New()
	r.SetHTMLTemplate(tmpl)
	r.Use(middlewares.RequestID())
	r.Use(func(c *gin.Context) { middlewares.WithSession(c, testSID, slice) })
	r.Use(middlewares.Flash(flash.NewCodec([]byte("test"), "admin_flash", false)))

	sh := handlers.NewSessionHandler(views, time.Second)
	ph := handlers.NewProductsHandler(views, nil)
	pages := handlers.NewPagesHandler(views, fakeTokens{}, "admin", time.Second)

	api2 := r.Group("/api")
	api2.GET("/session", sh.GetSession)
	api2.POST("/session/popup", sh.ShowPopUp())
	api2.DELETE("/session/popup", sh.HidePopUp())
	api2.POST("/session/warning", sh.ShowWarning())
	api2.DELETE("/session/warning", sh.HideWarning())
	api2.POST("/login", sh.Login)
	api2.POST("/logout", sh.Logout)
	api2.GET("/products", ph.List)
	api2.GET("/products/stream", ph.Stream)
	api2.DELETE("/products/:id", ph.Delete)

	r.GET("/", pages.Home)
	r.POST("/ui/popup", pages.TogglePopUp)
	r.POST("/ui/warning", pages.ToggleWarning)
	r.POST("/login", pages.Login)
	r.POST("/logout", pages.Logout)
	r.GET("/admin/products", pages.Products)
	r.POST("/admin/products/:id/delete", pages.DeleteProduct)
	r.POST("/admin/products/reload", pages.Reload)

	return &testEnv{router: r, slice: slice, views: views}
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func formHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
}

type sessionBody struct {
	Session map[string]any `json:"session"`
}

type errorBody struct {
	Error struct {
		Code      string      `json:"code"`
		Message   string      `json:"message"`
		RequestID string      `json:"requestId"`
		Details   sessionBody `json:"details"`
	} `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
	return out
}

func TestSessionFlagHandlers(t *testing.T) {
	tests := []struct {
		name      string
		initial   session.State
		method    string
		path      string
		wantField string
		wantValue bool
	}{
		{name: "show_popup", method: http.MethodPost, path: "/api/session/popup", wantField: "showPopUp", wantValue: true},
		{name: "hide_popup", initial: session.State{ShowPopUp: true, IsLoggedIn: true}, method: http.MethodDelete, path: "/api/session/popup", wantField: "showPopUp", wantValue: false},
		{name: "show_warning", initial: session.State{IsLoggedIn: true}, method: http.MethodPost, path: "/api/session/warning", wantField: "showWarning", wantValue: true},
		{name: "hide_warning", initial: session.State{IsLoggedIn: true, ShowWarning: true}, method: http.MethodDelete, path: "/api/session/warning", wantField: "showWarning", wantValue: false},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.initial, fakeAuth{}, &fakeProductAPI{})

			w := env.do(tt.method, tt.path, "", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
			}

			got := decode[sessionBody](t, w).Session
			if got[tt.wantField] != tt.wantValue {
				t.Fatalf("%s = %v, want %v", tt.wantField, got[tt.wantField], tt.wantValue)
			}
			if got["isLoggedIn"] != tt.initial.IsLoggedIn {
				t.Fatalf("isLoggedIn changed: %v", got["isLoggedIn"])
			}
		})
	}
}

func TestLoginHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		outcome    login.Outcome
		wantStatus int
		wantCode   string
		check      func(t *testing.T, s session.State)
	}{
		{
			name:       "accepted",
			body:       `{"username":"u","password":"p"}`,
			outcome:    login.Accepted{UserID: "u", Role: "r"},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, s session.State) {
				if s != (session.State{IsLoggedIn: true, UserID: "u", Role: "r"}) {
					t.Fatalf("state = %+v", s)
				}
			},
		},
		{
			name:       "rejected",
			body:       `{"username":"u","password":"bad"}`,
			outcome:    login.Rejected{Status: "wrong password"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "login_rejected",
			check: func(t *testing.T, s session.State) {
				if s.IsLoggedIn || s.LoginStatus != "wrong password" || !s.ShowPopUp {
					t.Fatalf("state = %+v", s)
				}
			},
		},
		{
			name:       "auth_api_down",
			body:       `{"username":"u","password":"p"}`,
			outcome:    login.Failed{Err: errors.New("dial tcp: connection refused")},
			wantStatus: http.StatusBadGateway,
			wantCode:   "auth_failed",
			check: func(t *testing.T, s session.State) {
				if s.LoginStatus != "" || s.LoginError == "" {
					t.Fatalf("failure must not be filed as a status: %+v", s)
				}
			},
		},
		{
			name:       "circuit_open",
			body:       `{"username":"u","password":"p"}`,
			outcome:    login.Failed{Err: upstream.ErrCircuitOpen},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "auth_unavailable",
		},
		{
			name:       "missing_password",
			body:       `{"username":"u"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			auth := fakeAuth{loginFn: func(_ context.Context, c login.Credentials) login.Outcome {
				calls++
				return tt.outcome
			}}
			env := newTestEnv(t, session.State{ShowPopUp: true}, auth, &fakeProductAPI{})

			w := env.do(http.MethodPost, "/api/login", tt.body, jsonHeaders())
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				resp := decode[errorBody](t, w)
				if resp.Error.Code != tt.wantCode {
					t.Fatalf("code = %q, want %q", resp.Error.Code, tt.wantCode)
				}
				if resp.Error.RequestID == "" {
					t.Fatalf("error envelope should carry the request id")
				}
			}
			if tt.outcome == nil && calls != 0 {
				t.Fatalf("auth api must not be called for an invalid body")
			}
			if tt.check != nil {
				tt.check(t, env.slice.State())
			}
		})
	}
}

func TestLoginAcceptedRemountsProducts(t *testing.T) {
	auth := fakeAuth{loginFn: func(context.Context, login.Credentials) login.Outcome {
		return login.Accepted{UserID: "u", Role: "admin"}
	}}
	env := newTestEnv(t, session.State{}, auth, &fakeProductAPI{})

	w := env.do(http.MethodPost, "/api/login", `{"username":"u","password":"p"}`, jsonHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if len(env.views.remounts) != 1 || env.views.remounts[0] != testSID {
		t.Fatalf("remounts = %v", env.views.remounts)
	}
}

func TestLogoutHandler(t *testing.T) {
	env := newTestEnv(t, session.State{ShowPopUp: true, IsLoggedIn: true, ShowWarning: true, UserID: "u", Role: "admin"}, fakeAuth{}, &fakeProductAPI{})

	w := env.do(http.MethodPost, "/api/logout", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	got := decode[sessionBody](t, w).Session
	want := map[string]any{"showPopUp": false, "isLoggedIn": false, "showWarning": false}
	if len(got) != len(want) {
		t.Fatalf("session = %v, want exactly %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("session[%s] = %v, want %v", k, got[k], v)
		}
	}
	if len(env.views.remounts) != 1 {
		t.Fatalf("logout should drop the product view")
	}
}

type pageBody struct {
	Loading   bool                 `json:"loading"`
	Rows      []product.DisplayRow `json:"rows"`
	Columns   []productview.Column `json:"columns"`
	Page      int                  `json:"page"`
	PageCount int                  `json:"pageCount"`
	PageSize  int                  `json:"pageSize"`
	Total     int                  `json:"total"`
	Notice    string               `json:"notice"`
}

func TestListProductsHandler(t *testing.T) {
	api := &fakeProductAPI{listFn: func(context.Context) ([]product.Record, error) { return records(12), nil }}
	env := newTestEnv(t, session.State{IsLoggedIn: true, Role: "admin"}, fakeAuth{}, api)

	env.views.Products(context.Background(), testSID).Wait()

	w := env.do(http.MethodGet, "/api/products?page=2", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	p := decode[pageBody](t, w)
	if p.Loading || p.Page != 2 || p.PageCount != 2 || p.PageSize != 9 || p.Total != 12 || len(p.Rows) != 3 {
		t.Fatalf("unexpected page: %+v", p)
	}
	if p.Rows[0].ID != "10" || p.Rows[0].Price != "12.50" || p.Rows[0].DateAdded != "2023-05-01 12:00:00" {
		t.Fatalf("unexpected row: %+v", p.Rows[0])
	}
	if last := p.Columns[len(p.Columns)-1]; last.Field != "action" || last.Width != 200 {
		t.Fatalf("last column = %+v", last)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	w = env.do(http.MethodGet, "/api/products?page=2", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotModified)
	}

	w = env.do(http.MethodGet, "/api/products?page=-1", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("page=-1: got status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestListProductsHandler_FetchFailureShowsNotice(t *testing.T) {
	api := &fakeProductAPI{listFn: func(context.Context) ([]product.Record, error) {
		return nil, errors.New("product api list: http 500")
	}}
	env := newTestEnv(t, session.State{IsLoggedIn: true, Role: "admin"}, fakeAuth{}, api)
	env.views.Products(context.Background(), testSID).Wait()

	p := decode[pageBody](t, env.do(http.MethodGet, "/api/products", "", nil))
	if p.Notice == "" || len(p.Rows) != 0 {
		t.Fatalf("unexpected page: %+v", p)
	}
}

func TestDeleteProductHandler(t *testing.T) {
	removed := make(chan string, 1)
	api := &fakeProductAPI{
		listFn: func(context.Context) ([]product.Record, error) { return records(3), nil },
		removeFn: func(_ context.Context, id string) error {
			removed <- id
			return nil
		},
	}
	env := newTestEnv(t, session.State{IsLoggedIn: true, Role: "admin"}, fakeAuth{}, api)
	c := env.views.Products(context.Background(), testSID)
	c.Wait()

	w := env.do(http.MethodDelete, "/api/products/2", "", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp struct {
		Deleted string   `json:"deleted"`
		Policy  string   `json:"policy"`
		Page    pageBody `json:"page"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Deleted != "2" || resp.Policy != "revert" || resp.Page.Total != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	select {
	case id := <-removed:
		if id != "2" {
			t.Fatalf("removed %q", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("remote removal was not sent")
	}
	c.Wait()

	w = env.do(http.MethodDelete, "/api/products/2", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: got status %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListProductsETagFollowsTheView(t *testing.T) {
	api := &fakeProductAPI{listFn: func(context.Context) ([]product.Record, error) { return records(12), nil }}
	env := newTestEnv(t, session.State{IsLoggedIn: true, Role: "admin"}, fakeAuth{}, api)
	env.views.Products(context.Background(), testSID).Wait()

	first := env.do(http.MethodGet, "/api/products?page=1", "", nil).Header().Get("ETag")
	if !strings.HasPrefix(first, `W/"`) {
		t.Fatalf("etag = %q, want a weak tag", first)
	}

	tests := []struct {
		name   string
		change func()
		path   string
		match  string
		want   int
	}{
		{name: "same_page_unchanged", path: "/api/products?page=1", match: first, want: http.StatusNotModified},
		{name: "strong_form_matches", path: "/api/products?page=1", match: strings.TrimPrefix(first, "W/"), want: http.StatusNotModified},
		{name: "listed_among_others", path: "/api/products?page=1", match: `"nope", ` + first, want: http.StatusNotModified},
		{name: "other_page", path: "/api/products?page=2", match: first, want: http.StatusOK},
		{
			name: "after_delete",
			change: func() {
				c := env.views.Products(context.Background(), testSID)
				c.Delete(context.Background(), "12")
				c.Wait()
			},
			path: "/api/products?page=1", match: first, want: http.StatusOK,
		},
		{
			name: "after_remount",
			change: func() {
				env.views.Remount(testSID)
				env.views.Products(context.Background(), testSID).Wait()
			},
			path: "/api/products?page=1", match: first, want: http.StatusOK,
		},
	}

	for _, tt := range tests {
		if tt.change != nil {
			tt.change()
		}
		w := env.do(http.MethodGet, tt.path, "", map[string]string{"If-None-Match": tt.match})
		if w.Code != tt.want {
			t.Fatalf("%s: got status %d, want %d", tt.name, w.Code, tt.want)
		}
	}
}

func TestProductStream(t *testing.T) {
	api := &fakeProductAPI{listFn: func(context.Context) ([]product.Record, error) { return records(2), nil }}
	env := newTestEnv(t, session.State{IsLoggedIn: true, Role: "admin"}, fakeAuth{}, api)
	c := env.views.Products(context.Background(), testSID)
	c.Wait()

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/products/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first pageBody
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first page: %v", err)
	}
	if first.Total != 2 {
		t.Fatalf("first page total = %d", first.Total)
	}

	c.Delete(context.Background(), "1")

	var next pageBody
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next.Total != 1 || next.Rows[0].ID != "2" {
		t.Fatalf("update = %+v", next)
	}
}

func dialStream(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/products/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestProductStreamFollowsRemount(t *testing.T) {
	tests := []struct {
		name    string
		remount func(env *testEnv)
	}{
		{name: "direct", remount: func(env *testEnv) { env.views.Remount(testSID) }},
		{name: "reload_form", remount: func(env *testEnv) {
			env.do(http.MethodPost, "/admin/products/reload", "", formHeaders())
		}},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			n := 2
			api := &fakeProductAPI{listFn: func(context.Context) ([]product.Record, error) {
				mu.Lock()
				defer mu.Unlock()
				return records(n), nil
			}}
			env := newTestEnv(t, session.State{IsLoggedIn: true, Role: "admin"}, fakeAuth{}, api)
			env.views.Products(context.Background(), testSID).Wait()

			conn := dialStream(t, env)

			var first pageBody
			if err := conn.ReadJSON(&first); err != nil {
				t.Fatalf("read first page: %v", err)
			}
			if first.Total != 2 {
				t.Fatalf("first page total = %d", first.Total)
			}

			mu.Lock()
			n = 3
			mu.Unlock()
			tt.remount(env)

			for {
				var next pageBody
				if err := conn.ReadJSON(&next); err != nil {
					t.Fatalf("stream did not follow the remount: %v", err)
				}
				if next.Total == 3 {
					break
				}
			}

			// the new view keeps pushing
			c := env.views.Products(context.Background(), testSID)
			c.Wait()
			if !c.Delete(context.Background(), "3") {
				t.Fatalf("row 3 missing from the remounted view")
			}
			for {
				var next pageBody
				if err := conn.ReadJSON(&next); err != nil {
					t.Fatalf("read after delete: %v", err)
				}
				if next.Total == 2 {
					break
				}
			}
		})
	}
}

func TestProductStreamClosesOnLogout(t *testing.T) {
	api := &fakeProductAPI{listFn: func(context.Context) ([]product.Record, error) { return records(1), nil }}
	env := newTestEnv(t, session.State{IsLoggedIn: true, Role: "admin"}, fakeAuth{}, api)
	env.views.Products(context.Background(), testSID).Wait()

	conn := dialStream(t, env)

	var first pageBody
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first page: %v", err)
	}

	if w := env.do(http.MethodPost, "/api/logout", "", nil); w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}

	var next pageBody
	err := conn.ReadJSON(&next)
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected a policy close after logout, got %v (page %+v)", err, next)
	}
}

func TestHomePage(t *testing.T) {
	env := newTestEnv(t, session.State{ShowPopUp: true, LoginStatus: "wrong password"}, fakeAuth{}, &fakeProductAPI{})

	w := env.do(http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	body := w.Body.String()
	for _, want := range []string{`action="/login"`, "wrong password", `value="tok-sid-1"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("home page missing %q", want)
		}
	}
}

func TestPopupAndWarningForms(t *testing.T) {
	env := newTestEnv(t, session.State{IsLoggedIn: true}, fakeAuth{}, &fakeProductAPI{})

	steps := []struct {
		path string
		show string
		want session.State
	}{
		{path: "/ui/popup", show: "1", want: session.State{IsLoggedIn: true, ShowPopUp: true}},
		{path: "/ui/warning", show: "1", want: session.State{IsLoggedIn: true, ShowPopUp: true, ShowWarning: true}},
		{path: "/ui/popup", show: "0", want: session.State{IsLoggedIn: true, ShowWarning: true}},
		{path: "/ui/warning", show: "0", want: session.State{IsLoggedIn: true}},
	}

	for _, st := range steps {
		w := env.do(http.MethodPost, st.path, url.Values{"show": {st.show}}.Encode(), formHeaders())
		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
			t.Fatalf("%s show=%s: got %d location=%q", st.path, st.show, w.Code, w.Header().Get("Location"))
		}
		if got := env.slice.State(); got != st.want {
			t.Fatalf("%s show=%s: state = %+v, want %+v", st.path, st.show, got, st.want)
		}
	}
}

func TestLoginForm(t *testing.T) {
	tests := []struct {
		name         string
		form         url.Values
		outcome      login.Outcome
		wantStatus   int
		wantLocation string
		wantFlash    bool
	}{
		{name: "admin_goes_to_products", form: url.Values{"username": {"u"}, "password": {"p"}}, outcome: login.Accepted{UserID: "u", Role: "admin"}, wantStatus: http.StatusSeeOther, wantLocation: "/admin/products"},
		{name: "non_admin_goes_home", form: url.Values{"username": {"u"}, "password": {"p"}}, outcome: login.Accepted{UserID: "u", Role: "staff"}, wantStatus: http.StatusSeeOther, wantLocation: "/"},
		{name: "rejected_goes_home", form: url.Values{"username": {"u"}, "password": {"bad"}}, outcome: login.Rejected{Status: "wrong password"}, wantStatus: http.StatusSeeOther, wantLocation: "/"},
		{name: "circuit_open_flashes", form: url.Values{"username": {"u"}, "password": {"p"}}, outcome: login.Failed{Err: upstream.ErrCircuitOpen}, wantStatus: http.StatusSeeOther, wantLocation: "/", wantFlash: true},
		{name: "transport_failure_goes_home", form: url.Values{"username": {"u"}, "password": {"p"}}, outcome: login.Failed{Err: errors.New("dial tcp: refused")}, wantStatus: http.StatusSeeOther, wantLocation: "/"},
		{name: "missing_password", form: url.Values{"username": {"u"}}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			auth := fakeAuth{loginFn: func(context.Context, login.Credentials) login.Outcome { return tt.outcome }}
			env := newTestEnv(t, session.State{ShowPopUp: true}, auth, &fakeProductAPI{})

			w := env.do(http.MethodPost, "/login", tt.form.Encode(), formHeaders())
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantLocation != "" && w.Header().Get("Location") != tt.wantLocation {
				t.Fatalf("location = %q, want %q", w.Header().Get("Location"), tt.wantLocation)
			}
			if got := flashCookie(t, w) != nil; got != tt.wantFlash {
				t.Fatalf("flash set = %v, want %v", got, tt.wantFlash)
			}
		})
	}
}

func TestLogoutForm(t *testing.T) {
	env := newTestEnv(t, session.State{IsLoggedIn: true, ShowWarning: true, UserID: "u", Role: "admin"}, fakeAuth{}, &fakeProductAPI{})

	w := env.do(http.MethodPost, "/logout", "", formHeaders())
	if w.Code != http.StatusSeeOther {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusSeeOther)
	}
	if got := env.slice.State(); got != (session.State{}) {
		t.Fatalf("state = %+v", got)
	}
}

func TestProductsPage(t *testing.T) {
	release := make(chan struct{})
	api := &fakeProductAPI{listFn: func(context.Context) ([]product.Record, error) {
		<-release
		return records(10), nil
	}}
	env := newTestEnv(t, session.State{IsLoggedIn: true, Role: "admin"}, fakeAuth{}, api)

	w := env.do(http.MethodGet, "/admin/products", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `http-equiv="refresh"`) {
		t.Fatalf("expected loading page, got %d body=%s", w.Code, w.Body.String())
	}

	close(release)
	env.views.Products(context.Background(), testSID).Wait()

	w = env.do(http.MethodGet, "/admin/products", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	body := w.Body.String()
	for _, want := range []string{"Manage Products", "<th style=\"width:200px\">Action</th>", `href="/admin/edit-product/1"`, "SKU-009", "Page 1 of 2"} {
		if !strings.Contains(body, want) {
			t.Fatalf("products page missing %q\n%s", want, body)
		}
	}
	if strings.Contains(body, "SKU-010") {
		t.Fatalf("page 1 must hold 9 rows only")
	}

	w = env.do(http.MethodGet, "/admin/products?page=abc", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad page: got %d", w.Code)
	}
}

func TestDeleteAndReloadForms(t *testing.T) {
	api := &fakeProductAPI{listFn: func(context.Context) ([]product.Record, error) { return records(3), nil }}
	env := newTestEnv(t, session.State{IsLoggedIn: true, Role: "admin"}, fakeAuth{}, api)
	c := env.views.Products(context.Background(), testSID)
	c.Wait()

	w := env.do(http.MethodPost, "/admin/products/3/delete?page=1", "", formHeaders())
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/admin/products?page=1" {
		t.Fatalf("delete: got %d location=%q", w.Code, w.Header().Get("Location"))
	}
	c.Wait()
	if len(c.State().Rows) != 2 {
		t.Fatalf("rows = %+v", c.State().Rows)
	}

	notice := flashCookie(t, w)
	if notice == nil {
		t.Fatal("delete should queue a flash message")
	}
	w = env.do(http.MethodGet, "/admin/products", "", map[string]string{"Cookie": notice.Name + "=" + notice.Value})
	if !strings.Contains(w.Body.String(), "Product 3 deleted.") {
		t.Fatalf("flash not rendered:\n%s", w.Body.String())
	}

	w = env.do(http.MethodPost, "/admin/products/3/delete", "", formHeaders())
	notice = flashCookie(t, w)
	if notice == nil || w.Header().Get("Location") != "/admin/products?page=1" {
		t.Fatalf("second delete: location=%q flash=%v", w.Header().Get("Location"), notice)
	}

	w = env.do(http.MethodPost, "/admin/products/reload", "", formHeaders())
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/admin/products" {
		t.Fatalf("reload: got %d location=%q", w.Code, w.Header().Get("Location"))
	}
	if len(env.views.remounts) != 1 {
		t.Fatalf("reload should remount, remounts=%v", env.views.remounts)
	}
}

func TestHealthHandlers(t *testing.T) {
	r := gin.New()
	down := handlers.NewHealthHandler(func(context.Context) error { return errors.New("redis: connection refused") })
	up := handlers.NewHealthHandler(nil)
	r.GET("/healthz", down.Healthz)
	r.GET("/readyz-down", down.Readyz)
	r.GET("/readyz-up", up.Readyz)

	tests := []struct {
		path string
		want int
	}{
		{path: "/healthz", want: http.StatusOK},
		{path: "/readyz-down", want: http.StatusServiceUnavailable},
		{path: "/readyz-up", want: http.StatusOK},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if w.Code != tt.want {
			t.Fatalf("%s: got status %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func flashCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "admin_flash" && c.MaxAge > 0 {
			return c
		}
	}
	return nil
}

type fakeEnder struct {
	forgotten []string
	err       error
}

func (f *fakeEnder) Forget(_ context.Context, sid string) error {
	f.forgotten = append(f.forgotten, sid)
	return f.err
}

func TestEndSession(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "forgotten", wantStatus: http.StatusNoContent},
		{name: "store down", err: errors.New("redis down"), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, session.State{IsLoggedIn: true}, fakeAuth{}, &fakeProductAPI{})
			ender := &fakeEnder{err: tt.err}
			env.router.DELETE("/api/session", handlers.NewSessionHandler(env.views, time.Second).End(ender))

			w := env.do(http.MethodDelete, "/api/session", "", nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d", w.Code, tt.wantStatus)
			}
			if len(ender.forgotten) != 1 || ender.forgotten[0] != testSID {
				t.Fatalf("forgotten = %v", ender.forgotten)
			}
			if tt.err == nil {
				expired := false
				for _, c := range w.Result().Cookies() {
					if c.Name == middlewares.SessionCookie && c.MaxAge < 0 {
						expired = true
					}
				}
				if !expired {
					t.Fatal("session cookie should be expired")
				}
			}
		})
	}
}
