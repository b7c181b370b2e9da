package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudcut/cloudcut-engine/internal/assets"
	"github.com/cloudcut/cloudcut-engine/internal/engine"
	"github.com/cloudcut/cloudcut-engine/internal/export"
	"github.com/cloudcut/cloudcut-engine/internal/media"
	"github.com/cloudcut/cloudcut-engine/internal/timeline"
	"github.com/cloudcut/cloudcut-engine/internal/transport"
)

type stubStore struct {
	assets []assets.Asset
}

func (s *stubStore) List(ctx context.Context, prefix, cursor string, limit int) (assets.ListResult, error) {
	return assets.ListResult{Assets: s.assets}, nil
}

func (s *stubStore) UploadSigned(ctx context.Context, name string, data []byte, signed assets.SignedParams, progress assets.ProgressFunc) (assets.Asset, error) {
	return assets.Asset{ID: "u1", PublicID: name, PlayableURL: "https://media.example/demo/upload/" + name}, nil
}

func (s *stubStore) Rename(ctx context.Context, oldPublicID, newPublicID string) (assets.Asset, error) {
	for _, a := range s.assets {
		if a.PublicID == oldPublicID {
			a.PublicID = newPublicID
			return a, nil
		}
		if a.PublicID == newPublicID {
			return assets.Asset{}, assets.ErrDuplicateID
		}
	}
	return assets.Asset{}, assets.ErrNotFound
}

func (s *stubStore) Delete(ctx context.Context, id string) error {
	for _, a := range s.assets {
		if a.ID == id {
			return nil
		}
	}
	return assets.ErrNotFound
}

func testRouter(t *testing.T, authToken string) (*chiRouter, *engine.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := &stubStore{assets: []assets.Asset{
		{ID: "a1", PublicID: "clip_1", PlayableURL: "https://media.example/demo/upload/clip_1.webm"},
	}}
	signer := assets.NewSigner("secret", "key", "demo")

	eng, err := engine.New(engine.Config{
		Logger: logger,
		Store:  store,
		Signer: signer,
		SourceFactory: func(ref string) (media.Source, error) {
			return media.NewSimSource(media.SimConfig{AssetRef: ref, Duration: 5}), nil
		},
		RecorderFactory: &export.SimRecorderFactory{},
	})
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	t.Cleanup(eng.Teardown)

	router := NewRouter(ServerConfig{
		Port:      0,
		Engine:    eng,
		Store:     store,
		Signer:    signer,
		AuthToken: authToken,
		Logger:    logger,
		StartTime: time.Now(),
	})
	return &chiRouter{router}, eng
}

// chiRouter adds a tiny request helper around the mux.
type chiRouter struct {
	http.Handler
}

func (c *chiRouter) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	c.ServeHTTP(rr, req)
	return rr
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func addTestClip(t *testing.T, r *chiRouter, eng *engine.Engine) string {
	t.Helper()
	rr := r.do(t, http.MethodPost, "/timeline/clips", ClipAddRequest{SourceRef: "asset-1", Label: "Clip 1", Duration: 5})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add clip status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	waitReady(t, eng)
	body := decodeJSONBody(t, rr)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("clip id missing from response")
	}
	return id
}

func waitReady(t *testing.T, eng *engine.Engine) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if eng.Transport().State() == transport.StateReady {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("transport never became ready")
}

func TestHealthHandler(t *testing.T) {
	r, _ := testRouter(t, "")

	rr := r.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestAuth_RejectsMissingAndWrongToken(t *testing.T) {
	r, _ := testRouter(t, "right-token")

	rr := r.do(t, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no-token status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong-token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer right-token")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("right-token status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestStatusHandler(t *testing.T) {
	r, eng := testRouter(t, "")
	addTestClip(t, r, eng)

	rr := r.do(t, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["state"] != "ready" {
		t.Errorf("state = %v, want ready", body["state"])
	}
	if body["duration"] != 5.0 {
		t.Errorf("duration = %v, want 5", body["duration"])
	}
	if body["active_clip_id"] == "" {
		t.Error("active_clip_id missing")
	}
}

func TestPlaybackToggleAndStop(t *testing.T) {
	r, eng := testRouter(t, "")
	addTestClip(t, r, eng)

	rr := r.do(t, http.MethodPost, "/playback/toggle", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := decodeJSONBody(t, rr); body["playing"] != true {
		t.Errorf("playing = %v, want true", body["playing"])
	}

	rr = r.do(t, http.MethodPost, "/playback/stop", nil)
	body := decodeJSONBody(t, rr)
	if body["playing"] != false {
		t.Errorf("playing after stop = %v, want false", body["playing"])
	}
	if body["current_time"] != 0.0 {
		t.Errorf("current_time after stop = %v, want 0", body["current_time"])
	}
}

func TestSeekHandler(t *testing.T) {
	r, eng := testRouter(t, "")
	addTestClip(t, r, eng)

	rr := r.do(t, http.MethodPost, "/playback/seek", SeekRequest{Time: 2.5})
	if rr.Code != http.StatusOK {
		t.Fatalf("seek status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := decodeJSONBody(t, rr); body["current_time"] != 2.5 {
		t.Errorf("current_time = %v, want 2.5", body["current_time"])
	}

	rr = r.do(t, http.MethodPost, "/playback/pause-at", PauseAtRequest{Time: 1.25})
	if body := decodeJSONBody(t, rr); body["current_time"] != 1.25 {
		t.Errorf("current_time = %v, want 1.25", body["current_time"])
	}
}

func TestEffectsRoundTrip(t *testing.T) {
	r, _ := testRouter(t, "")

	put := EffectsBody{
		Filters:        []FilterOpBody{{Kind: "brightness", Magnitude: 1.2}, {Kind: "blur", Magnitude: 2}},
		Vignette:       true,
		Sharpen:        0.4,
		OverlayText:    "Session",
		OverlayOpacity: 0.8,
		ShowOverlay:    true,
	}
	rr := r.do(t, http.MethodPut, "/effects", put)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	rr = r.do(t, http.MethodGet, "/effects", nil)
	body := decodeJSONBody(t, rr)
	if body["vignette"] != true || body["sharpen"] != 0.4 {
		t.Errorf("effects = %v, want vignette true and sharpen 0.4", body)
	}
	shorthand, _ := body["filter_shorthand"].(string)
	if !strings.Contains(shorthand, "brightness(1.2)") || !strings.Contains(shorthand, "blur(2px)") {
		t.Errorf("filter shorthand = %q, want brightness and blur ops", shorthand)
	}
}

func TestCropModeHandler(t *testing.T) {
	r, _ := testRouter(t, "")

	rr := r.do(t, http.MethodPut, "/crop/mode", CropModeRequest{Mode: "sideways"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = r.do(t, http.MethodPut, "/crop/mode", CropModeRequest{Mode: "smart"})
	if rr.Code != http.StatusOK {
		t.Fatalf("smart mode status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := decodeJSONBody(t, rr); body["use_local"] != false {
		t.Errorf("use_local = %v, want false", body["use_local"])
	}

	rr = r.do(t, http.MethodPost, "/crop/failure", nil)
	if body := decodeJSONBody(t, rr); body["gravity"] != "center" {
		t.Errorf("gravity after failure = %v, want center", body["gravity"])
	}
}

func TestTrimHandlers(t *testing.T) {
	r, eng := testRouter(t, "")
	addTestClip(t, r, eng)

	rr := r.do(t, http.MethodPut, "/trim", TrimRequest{In: 3, Out: 1})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("inverted trim status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	rr = r.do(t, http.MethodPut, "/trim", TrimRequest{In: 1, Out: 3, Loop: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("trim status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["active"] != true || body["loop"] != true {
		t.Errorf("trim response = %v, want active looping range", body)
	}

	rr = r.do(t, http.MethodDelete, "/trim", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("clear trim status = %d, want %d", rr.Code, http.StatusOK)
	}
	rr = r.do(t, http.MethodGet, "/trim", nil)
	if body := decodeJSONBody(t, rr); body["active"] != false {
		t.Errorf("trim still active after delete: %v", body)
	}
}

func TestTimelineHandlers(t *testing.T) {
	r, eng := testRouter(t, "")
	id := addTestClip(t, r, eng)

	rr := r.do(t, http.MethodPost, "/timeline/clips/"+id+"/split", SplitRequest{Offset: 2})
	if rr.Code != http.StatusCreated {
		t.Fatalf("split status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	second := decodeJSONBody(t, rr)
	secondID, _ := second["id"].(string)

	rr = r.do(t, http.MethodGet, "/timeline/clips", nil)
	var clips []timeline.Clip
	if err := json.NewDecoder(rr.Body).Decode(&clips); err != nil {
		t.Fatalf("decode clips: %v", err)
	}
	if len(clips) != 2 {
		t.Fatalf("got %d clips, want 2", len(clips))
	}

	rr = r.do(t, http.MethodPost, "/timeline/clips/"+secondID+"/select", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("select status = %d, want %d", rr.Code, http.StatusOK)
	}

	rr = r.do(t, http.MethodDelete, "/timeline/clips/"+secondID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", rr.Code, http.StatusOK)
	}
	rr = r.do(t, http.MethodDelete, "/timeline/clips/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestExportHandlers(t *testing.T) {
	r, eng := testRouter(t, "")
	addTestClip(t, r, eng)

	rr := r.do(t, http.MethodGet, "/export", nil)
	if body := decodeJSONBody(t, rr); body["state"] != "idle" {
		t.Errorf("initial export state = %v, want idle", body["state"])
	}

	rr = r.do(t, http.MethodPost, "/export", ExportRequest{Title: "API Export"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("export status = %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}

	rr = r.do(t, http.MethodDelete, "/export", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("abort status = %d, want %d", rr.Code, http.StatusOK)
	}
	if body := decodeJSONBody(t, rr); body["state"] != "idle" {
		t.Errorf("state after abort = %v, want idle", body["state"])
	}
}

func TestAssetHandlers(t *testing.T) {
	r, _ := testRouter(t, "")

	rr := r.do(t, http.MethodGet, "/assets", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", rr.Code, http.StatusOK)
	}

	rr = r.do(t, http.MethodPost, "/assets/sign", SignUploadRequest{Folder: "exports", PublicID: "clip_9"})
	if rr.Code != http.StatusOK {
		t.Fatalf("sign status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["signature"] == "" || body["api_key"] != "key" {
		t.Errorf("sign response = %v, want signature and api key", body)
	}

	rr = r.do(t, http.MethodPost, "/assets/rename", RenameAssetRequest{From: "missing", To: "whatever"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("rename missing status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = r.do(t, http.MethodDelete, "/assets/a1", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	rr = r.do(t, http.MethodDelete, "/assets/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
