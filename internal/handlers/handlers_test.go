package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/trapcam/internal/config"
	"github.com/Brownie44l1/trapcam/internal/gallery"
	"github.com/Brownie44l1/trapcam/internal/inference"
	"github.com/Brownie44l1/trapcam/internal/model"
	"github.com/Brownie44l1/trapcam/internal/pager"
	"github.com/Brownie44l1/trapcam/internal/upstream"
)

type fakeLister struct{}

func (fakeLister) List(ctx context.Context, folder string) ([]string, error) {
	out := make([]string, 10)
	for i := range out {
		out[i] = fmt.Sprintf("%d.jpg", i)
	}
	return out, nil
}

func (fakeLister) Forget(folder string) {}

type fakePixels struct{}

func (fakePixels) Load(ctx context.Context, src string) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

type fakeHandle struct{}

func (fakeHandle) Score(ctx context.Context, img image.Image) (float32, error) { return 0.7, nil }
func (fakeHandle) Classes() []string                                         { return model.DefaultClasses }
func (fakeHandle) Close()                                                    {}
func (fakeHandle) Run(in []float32) ([]float32, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("expected 3 values, got %d", len(in))
	}
	return []float32{0.3}, nil
}

type fakeGetter struct{}

func (fakeGetter) Get(ctx context.Context, url string) ([]byte, error) {
	if strings.HasSuffix(url, "/model.onnx") {
		return []byte("graph"), nil
	}
	return nil, upstream.ErrNotFound
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	handler  *Handler
	router   http.Handler
	registry *model.Registry
	store    *gallery.Store
}

func newFixture(t *testing.T, development bool) *fixture {
	t.Helper()
	log := quietLogger()
	cfg := *config.DefaultConfig()
	cfg.BaseURL = "http://files"
	cfg.Development = development

	registry := model.NewRegistry(fakeGetter{}, func(data []byte, meta model.Metadata) (model.Handle, error) {
		return fakeHandle{}, nil
	}, cfg.ModelFile, cfg.MetadataFile, log)

	store := gallery.NewStore(&gallery.Deps{
		Lister:   fakeLister{},
		Pixels:   fakePixels{},
		Models:   registry,
		Adapter:  inference.NewAdapter(log),
		BaseURL:  cfg.BaseURL,
		Debounce: 5 * time.Millisecond,
		Log:      log,
	}, cfg.Folder, time.Minute)
	t.Cleanup(store.Close)

	h := NewHandler(cfg, store, registry, log)
	return &fixture{handler: h, router: h.Router(), registry: registry, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if body != nil && method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) gallery.State {
	t.Helper()
	var st gallery.State
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decoding state: %v (%s)", err, w.Body.String())
	}
	return st
}

func waitForTotal(t *testing.T, f *fixture, cookie *http.Cookie) gallery.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := decodeState(t, f.do(t, http.MethodGet, "/api/gallery", nil, cookie))
		if !st.Loading && st.Total > 0 {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("listing never finished")
	return gallery.State{}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected status 'healthy', got %q", body["status"])
	}
}

func TestIndexSetsSessionAndRenders(t *testing.T) {
	f := newFixture(t, false)
	w := f.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	cookie := sessionCookie(t, w)
	if !strings.Contains(w.Body.String(), "Animal Classifier") {
		t.Error("page title missing")
	}

	waitForTotal(t, f, cookie)
	w = f.do(t, http.MethodGet, "/", nil, cookie)
	body := w.Body.String()
	if !strings.Contains(body, `src="http://files/images/ANIMAL/0.jpg"`) {
		t.Errorf("expected first image in page:\n%s", body)
	}
	if !strings.Contains(body, `crossorigin="anonymous"`) {
		t.Error("images should be requested anonymously")
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("existing session should not get a new cookie")
	}
}

func TestGalleryActions(t *testing.T) {
	f := newFixture(t, false)
	cookie := sessionCookie(t, f.do(t, http.MethodGet, "/api/gallery", nil, nil))
	waitForTotal(t, f, cookie)

	w := f.do(t, http.MethodPost, "/api/gallery/previous", nil, cookie)
	if st := decodeState(t, w); st.Window != pager.First() {
		t.Errorf("previous on first page moved to %v", st.Window)
	}

	w = f.do(t, http.MethodPost, "/api/gallery/next", nil, cookie)
	if st := decodeState(t, w); st.Window != (pager.Window{4, 5, 6, 7}) || !st.HasPrevious {
		t.Errorf("unexpected state after next %+v", st)
	}

	w = f.do(t, http.MethodPost, "/api/gallery/sideways", nil, cookie)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown action: expected 404, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/next", nil, cookie)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Errorf("form action should redirect, got %d %q", w.Code, w.Header().Get("Location"))
	}

	w = f.do(t, http.MethodPost, "/api/gallery/folder", strings.NewReader(`{"folder":"EMPTY"}`), cookie)
	if st := decodeState(t, w); st.Folder != "EMPTY" || st.Window != pager.First() {
		t.Errorf("unexpected state after folder switch %+v", st)
	}

	w = f.do(t, http.MethodPost, "/api/gallery/folder", strings.NewReader(`{"folder":"../etc"}`), cookie)
	if w.Code != http.StatusBadRequest {
		t.Errorf("path traversal folder: expected 400, got %d", w.Code)
	}
}

func TestPredictWithoutModelLeavesLabelsEmpty(t *testing.T) {
	f := newFixture(t, false)
	cookie := sessionCookie(t, f.do(t, http.MethodGet, "/api/gallery", nil, nil))
	waitForTotal(t, f, cookie)

	st := decodeState(t, f.do(t, http.MethodPost, "/api/gallery/predict", nil, cookie))
	for i, slot := range st.Slots {
		if slot.Label != "" {
			t.Errorf("slot %d: expected no label without a model, got %q", i, slot.Label)
		}
	}
}

func TestSwitchModelAndPredict(t *testing.T) {
	f := newFixture(t, false)
	cookie := sessionCookie(t, f.do(t, http.MethodGet, "/api/gallery", nil, nil))
	waitForTotal(t, f, cookie)

	w := f.do(t, http.MethodPost, "/api/model", strings.NewReader(`{"dataset":"BO16","weights":"ResNet-50"}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("switch model: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, u := f.registry.Current(); u != "http://files/weights/BO16/ResNet-50" {
		t.Errorf("current model %q", u)
	}

	st := decodeState(t, f.do(t, http.MethodPost, "/api/gallery/predict", nil, cookie))
	for i, slot := range st.Slots {
		if slot.Label != "EMPTY: 70.00%" {
			t.Errorf("slot %d: got %q", i, slot.Label)
		}
	}

	if w := f.do(t, http.MethodPost, "/api/model", strings.NewReader(`{`), nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: expected 400, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/model", strings.NewReader(`{"dataset":"BO16"}`), nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing weights: expected 400, got %d", w.Code)
	}
}

func TestSwitchModelInDevelopment(t *testing.T) {
	f := newFixture(t, true)
	w := f.do(t, http.MethodPost, "/api/model", strings.NewReader(`{"dataset":"BO16","weights":"ResNet-50"}`), nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 in development, got %d", w.Code)
	}
}

func uploadRequest(t *testing.T) *http.Request {
	t.Helper()
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "trap.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(img.Bytes())
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestPredictFromImage(t *testing.T) {
	f := newFixture(t, false)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, uploadRequest(t))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("no model: expected 503, got %d", w.Code)
	}

	if _, err := f.registry.Load(context.Background(), "http://files/weights/BO16/ResNet-101"); err != nil {
		t.Fatal(err)
	}

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, uploadRequest(t))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var p model.Prediction
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Label != "EMPTY" || !p.OK {
		t.Errorf("unexpected prediction %+v", p)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader("nope"))
	req.Header.Set("Content-Type", "text/plain")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-multipart: expected 400, got %d", w.Code)
	}
}

func TestPredictRawTensor(t *testing.T) {
	f := newFixture(t, false)
	if _, err := f.registry.Load(context.Background(), "http://files/weights/BO16/ResNet-101"); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodPost, "/api/predict", strings.NewReader(`{"image":[1,2,3]}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var p model.Prediction
	json.Unmarshal(w.Body.Bytes(), &p)
	if p.Label != "ANIMAL" {
		t.Errorf("unexpected prediction %+v", p)
	}

	if w := f.do(t, http.MethodPost, "/api/predict", strings.NewReader(`{"image":[1]}`), nil); w.Code != http.StatusBadRequest {
		t.Errorf("wrong size: expected 400, got %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, "/api/predict", strings.NewReader(`nope`), nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: expected 400, got %d", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestWatchPushesState(t *testing.T) {
	f := newFixture(t, false)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/gallery")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("no session cookie")
	}

	header := http.Header{}
	header.Set("Cookie", SessionCookie+"="+cookie.Value)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var st gallery.State
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("read: %v", err)
		}
		if st.Session != cookie.Value {
			t.Fatalf("state for session %q, want %q", st.Session, cookie.Value)
		}
		if st.Total == 10 {
			return
		}
	}
}
