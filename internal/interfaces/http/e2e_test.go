package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/securecam/internal/application/capture"
	"github.com/dreschagin/securecam/internal/application/port"
	"github.com/dreschagin/securecam/internal/application/usecase"
	"github.com/dreschagin/securecam/internal/infrastructure/backend"
	"github.com/dreschagin/securecam/internal/infrastructure/device"
	"github.com/dreschagin/securecam/internal/infrastructure/metrics"
	wsInfra "github.com/dreschagin/securecam/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/securecam/internal/infrastructure/persistence/sqlite"
	"github.com/dreschagin/securecam/internal/interfaces/http/handler"
	"github.com/dreschagin/securecam/internal/interfaces/http/middleware"
	"github.com/dreschagin/securecam/pkg/config"
	"github.com/dreschagin/securecam/pkg/logger"
)

const testToken = "test-token"

type memoryObjectStorage struct {
	mu      sync.RWMutex
	objects map[string]port.StoredObject
	failFor string
}

func newMemoryObjectStorage() *memoryObjectStorage {
	return &memoryObjectStorage{objects: make(map[string]port.StoredObject)}
}

func (s *memoryObjectStorage) HeadBucket(context.Context) error { return nil }

func (s *memoryObjectStorage) PutObject(ctx context.Context, key, contentType string, body []byte, progress port.ProgressFunc) (port.PutObjectResult, error) {
	return s.PutObjectStream(ctx, key, contentType, bytes.NewReader(body), int64(len(body)), progress)
}

func (s *memoryObjectStorage) PutObjectStream(_ context.Context, key, _ string, body io.Reader, _ int64, progress port.ProgressFunc) (port.PutObjectResult, error) {
	s.mu.RLock()
	failFor := s.failFor
	s.mu.RUnlock()
	if failFor != "" && strings.Contains(key, failFor) {
		return port.PutObjectResult{}, errors.New("simulated network error")
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return port.PutObjectResult{}, err
	}
	if progress != nil {
		progress(100)
	}

	s.mu.Lock()
	s.objects[key] = port.StoredObject{Key: key, SizeBytes: int64(len(data)), LastModified: time.Now()}
	s.mu.Unlock()
	return port.PutObjectResult{Key: key, Location: "https://media.test/" + key, ETag: fmt.Sprintf("\"%d\"", len(data))}, nil
}

func (s *memoryObjectStorage) ListObjects(_ context.Context, prefix string) ([]port.StoredObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]port.StoredObject, 0)
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			result = append(result, obj)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (s *memoryObjectStorage) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://media.test/%s?expires=%d", key, int(ttl.Seconds())), nil
}

func (s *memoryObjectStorage) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memoryObjectStorage) DeleteObjects(ctx context.Context, keys []string) error {
	for _, key := range keys {
		_ = s.DeleteObject(ctx, key)
	}
	return nil
}

func (s *memoryObjectStorage) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *memoryObjectStorage) failKeysContaining(marker string) {
	s.mu.Lock()
	s.failFor = marker
	s.mu.Unlock()
}

// newBackendServer отдает два груза: 42 (не завершен) и 43 (завершен).
func newBackendServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/loads":
			_, _ = io.WriteString(w, `[
				{"ID": 42, "userId": 7, "loadNumber": "LN-7", "userName": "Ali", "status": {"data": [0]}, "created_at": "2024-05-01T10:00:00.000Z"},
				{"ID": 43, "userId": 7, "loadNumber": "LN-8", "userName": "Ali", "status": {"data": [1]}, "created_at": "2024-05-02T10:00:00.000Z"}
			]`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/user/signup":
			_, _ = io.WriteString(w, `{"success": true, "message": "User registered successfully", "user": {"ID": 9, "name": "Ali", "phoneNumber": "03001234567"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

type testEnv struct {
	server  *httptest.Server
	storage *memoryObjectStorage
	hub     *wsInfra.Hub
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	storage := newMemoryObjectStorage()
	env := startServer(t, storage, nil)
	env.storage = storage
	return env
}

// startServer собирает приложение целиком, как cmd/securecam-api, с backend на httptest.
func startServer(t *testing.T, storage port.ObjectStorage, catalog port.MediaCatalog) *testEnv {
	t.Helper()

	log := logger.New("error")
	root := t.TempDir()
	spoolDir := filepath.Join(root, "spool")

	files, err := device.NewFileSource(spoolDir)
	if err != nil {
		t.Fatalf("file source: %v", err)
	}
	headroom := device.NewHeadroom(spoolDir, 0)

	db, err := sqlite.Open(filepath.Join(root, "media.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := sqlite.NewMediaStore(db)
	if err != nil {
		t.Fatalf("media store: %v", err)
	}

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	backendServer := newBackendServer(t)
	backendClient := backend.NewClient(backendServer.URL, 5*time.Second)
	loads := backend.NewLoadsClient(backendClient)

	uploadUC := usecase.NewUploadMediaBatchUseCase(
		usecase.UploadMediaBatchDeps{
			Storage:  storage,
			Source:   files,
			Catalog:  catalog,
			Store:    store,
			Recorder: appMetrics,
		},
		usecase.UploadMediaBatchConfig{KeyPrefix: "loads", StreamThreshold: 5 * 1024 * 1024},
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	hub := wsInfra.NewHub(log)
	go hub.Run(ctx)

	sessions := capture.NewManager(
		capture.ManagerConfig{MaxVideoDuration: 20 * time.Second},
		capture.Deps{Uploader: uploadUC, Loads: loads, Store: store, Sink: hub},
		func(sessionID string) (capture.Rig, error) {
			return device.NewSpoolRig(sessionID, device.SpoolConfig{Root: spoolDir, MaxBytes: 1 << 20, Headroom: headroom})
		},
		log,
	)
	t.Cleanup(func() {
		sessions.CloseAll()
		cancel()
	})

	security := config.SecurityConfig{AuthEnabled: true, AuthToken: testToken}
	authConfig := middleware.AuthConfig{Enabled: true, BearerToken: testToken}

	router := NewRouter(
		Handlers{
			Sessions: handler.NewSessionAPIHandler(sessions, 1<<20, log),
			Loads: handler.NewLoadsAPIHandler(
				usecase.NewListLoadsUseCase(loads, log),
				usecase.NewListLoadMediaUseCase(storage, usecase.ListLoadMediaConfig{KeyPrefix: "loads"}, log),
				usecase.NewDeleteLoadMediaUseCase(storage, usecase.DeleteLoadMediaConfig{KeyPrefix: "loads"}, log),
				log,
			),
			DeviceMedia: handler.NewDeviceMediaAPIHandler(store, files, log),
			Auth:        handler.NewAuthAPIHandler(authConfig, usecase.NewSignupUserUseCase(backend.NewUsersClient(backendClient), log), log),
			WebSocket:   handler.NewWebSocketHandler(hub, []string{"*"}, authConfig, log),
			Health:      handler.NewHealthHandler(map[string]handler.ReadinessCheck{"spool": headroom.Check}),
			Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		},
		appMetrics,
		nil,
		security,
		log,
	)

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return &testEnv{server: server, hub: hub}
}

func doRequest(t *testing.T, client *http.Client, method, url string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func authorized() map[string]string {
	return map[string]string{"Authorization": "Bearer " + testToken}
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

type sessionBody struct {
	SessionID  string `json:"session_id"`
	LoadNumber string `json:"load_number"`
	State      string `json:"state"`
	StepIndex  int    `json:"step_index"`
	Artifacts  []struct {
		ID        string `json:"id"`
		Kind      string `json:"kind"`
		StepIndex int    `json:"step_index"`
	} `json:"artifacts"`
	UploadPercent int `json:"upload_percent"`
	Result        *struct {
		Total          int  `json:"total"`
		Succeeded      int  `json:"succeeded"`
		Failed         int  `json:"failed"`
		OverallSuccess bool `json:"overall_success"`
		Partial        bool `json:"partial"`
	} `json:"result"`
}

type artifactBody struct {
	Artifact struct {
		Kind      string `json:"kind"`
		StepIndex int    `json:"step_index"`
		SizeBytes int64  `json:"size_bytes"`
	} `json:"artifact"`
	Session sessionBody `json:"session"`
}

func createSession(t *testing.T, env *testEnv, payload string, want int) sessionBody {
	t.Helper()
	resp := doRequest(t, env.server.Client(), http.MethodPost, env.server.URL+"/api/v1/sessions", []byte(payload), authorized())
	expectStatus(t, resp, want)

	if want == http.StatusCreated {
		var session sessionBody
		decodeBody(t, resp, &session)
		return session
	}
	var failure struct {
		Error   string      `json:"error"`
		Session sessionBody `json:"session"`
	}
	decodeBody(t, resp, &failure)
	if failure.Error == "" {
		t.Fatalf("expected error message in session failure")
	}
	return failure.Session
}

func captureStep(t *testing.T, env *testEnv, sessionID, path string, body []byte) artifactBody {
	t.Helper()
	resp := doRequest(t, env.server.Client(), http.MethodPost, env.server.URL+"/api/v1/sessions/"+sessionID+path, body, authorized())
	expectStatus(t, resp, http.StatusCreated)
	var artifact artifactBody
	decodeBody(t, resp, &artifact)
	return artifact
}

func TestE2EHealthEndpoints(t *testing.T) {
	env := newTestServer(t)
	client := env.server.Client()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp := doRequest(t, client, http.MethodGet, env.server.URL+path, nil, nil)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}
}

func TestE2EAuthAndLoads(t *testing.T) {
	env := newTestServer(t)
	client := env.server.Client()

	resp := doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/loads", nil, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	resp = doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/loads?user_id=7", nil, authorized())
	expectStatus(t, resp, http.StatusOK)
	var loads struct {
		Loads []struct {
			ID         string `json:"id"`
			LoadNumber string `json:"load_number"`
			Completion string `json:"completion"`
			CanCapture bool   `json:"can_capture"`
		} `json:"loads"`
		Count int `json:"count"`
	}
	decodeBody(t, resp, &loads)
	if loads.Count != 2 {
		t.Fatalf("expected 2 loads, got %d", loads.Count)
	}
	if loads.Loads[0].Completion != "not_completed" || !loads.Loads[0].CanCapture {
		t.Fatalf("unexpected first load: %+v", loads.Loads[0])
	}
	if loads.Loads[1].Completion != "completed" || loads.Loads[1].CanCapture {
		t.Fatalf("unexpected second load: %+v", loads.Loads[1])
	}

	resp = doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/auth/signup", []byte(`{"name":"","phone_number":"12"}`), authorized())
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	var invalid struct {
		Problems []string `json:"problems"`
	}
	decodeBody(t, resp, &invalid)
	if len(invalid.Problems) < 2 {
		t.Fatalf("expected several validation problems, got %v", invalid.Problems)
	}

	resp = doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/auth/signup", []byte(`{"name":"Ali","phone_number":"03001234567"}`), authorized())
	expectStatus(t, resp, http.StatusCreated)
	var signup struct {
		IsNewUser bool `json:"is_new_user"`
		User      struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decodeBody(t, resp, &signup)
	if !signup.IsNewUser || signup.User.ID != "9" {
		t.Fatalf("unexpected signup response: %+v", signup)
	}
}

func TestE2ECaptureAndUpload(t *testing.T) {
	env := newTestServer(t)
	client := env.server.Client()

	session := createSession(t, env, `{"load_id":"42","camera":"granted","microphone":"granted"}`, http.StatusCreated)
	if session.State != "ready" || session.LoadNumber != "LN-7" {
		t.Fatalf("unexpected session after create: %+v", session)
	}

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?session_id=" + session.SessionID + "&token=" + testToken
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"http://field.test"}})
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	wsResp.Body.Close()
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	first := captureStep(t, env, session.SessionID, "/photo", []byte("jpeg-one"))
	if first.Artifact.Kind != "photo" || first.Artifact.StepIndex != 0 || first.Session.StepIndex != 1 {
		t.Fatalf("unexpected first step: %+v", first)
	}
	captureStep(t, env, session.SessionID, "/photo", []byte("jpeg-two"))

	resp := doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/sessions/"+session.SessionID+"/photo", []byte("extra"), authorized())
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/sessions/"+session.SessionID+"/video/start", nil, authorized())
	expectStatus(t, resp, http.StatusOK)
	var recording sessionBody
	decodeBody(t, resp, &recording)
	if recording.State != "recording" {
		t.Fatalf("expected recording, got %s", recording.State)
	}

	last := captureStep(t, env, session.SessionID, "/video/stop", []byte("mp4-bytes"))
	if last.Session.State != "done" || last.Session.Result == nil {
		t.Fatalf("expected done with result, got %+v", last.Session)
	}
	if last.Session.Result.Succeeded != 3 || !last.Session.Result.OverallSuccess || last.Session.Result.Partial {
		t.Fatalf("unexpected batch result: %+v", last.Session.Result)
	}
	if len(last.Session.Artifacts) != 3 || env.storage.count() != 3 {
		t.Fatalf("expected 3 artifacts and 3 objects, got %d and %d", len(last.Session.Artifacts), env.storage.count())
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var message wsInfra.Message
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("expected session event over websocket: %v", err)
	}
	if message.Type == "" {
		t.Fatalf("expected typed websocket message, got %+v", message)
	}

	resp = doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/loads/LN-7/media?ttl_seconds=60", nil, authorized())
	expectStatus(t, resp, http.StatusOK)
	var media struct {
		Items []struct {
			Key  string `json:"key"`
			Step int    `json:"step"`
			Kind string `json:"kind"`
			URL  string `json:"url"`
		} `json:"items"`
		Count int `json:"count"`
	}
	decodeBody(t, resp, &media)
	if media.Count != 3 {
		t.Fatalf("expected 3 remote items, got %d", media.Count)
	}
	if media.Items[0].Step != 1 || media.Items[2].Kind != "video" || !strings.Contains(media.Items[0].URL, "expires=60") {
		t.Fatalf("unexpected media ordering: %+v", media.Items)
	}

	resp = doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/device/media/status", nil, authorized())
	expectStatus(t, resp, http.StatusOK)
	var status struct {
		Total            int `json:"total"`
		Uploaded         int `json:"uploaded"`
		UploadPercentage int `json:"upload_percentage"`
	}
	decodeBody(t, resp, &status)
	if status.Total != 3 || status.Uploaded != 3 || status.UploadPercentage != 100 {
		t.Fatalf("unexpected upload status: %+v", status)
	}

	resp = doRequest(t, client, http.MethodDelete, env.server.URL+"/api/v1/loads/LN-7/media?key="+media.Items[0].Key, nil, authorized())
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	if env.storage.count() != 2 {
		t.Fatalf("expected 2 objects after delete, got %d", env.storage.count())
	}

	resp = doRequest(t, client, http.MethodDelete, env.server.URL+"/api/v1/device/media", nil, authorized())
	expectStatus(t, resp, http.StatusOK)
	var cleared struct {
		Deleted int `json:"deleted"`
	}
	decodeBody(t, resp, &cleared)
	if cleared.Deleted != 3 {
		t.Fatalf("expected 3 local records cleared, got %d", cleared.Deleted)
	}
}

func TestE2EPartialUploadAndRetry(t *testing.T) {
	env := newTestServer(t)
	client := env.server.Client()

	session := createSession(t, env, `{"load_number":"LN-9","camera":"granted","microphone":"denied"}`, http.StatusCreated)
	captureStep(t, env, session.SessionID, "/photo", []byte("jpeg-one"))
	captureStep(t, env, session.SessionID, "/photo", []byte("jpeg-two"))

	env.storage.failKeysContaining("-video.")
	resp := doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/sessions/"+session.SessionID+"/video/start", nil, authorized())
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	last := captureStep(t, env, session.SessionID, "/video/stop", []byte("mp4-bytes"))
	result := last.Session.Result
	if result == nil || !result.OverallSuccess || !result.Partial || result.Failed != 1 {
		t.Fatalf("expected partial success, got %+v", result)
	}

	env.storage.failKeysContaining("")
	resp = doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/sessions/"+session.SessionID+"/retry", nil, authorized())
	expectStatus(t, resp, http.StatusOK)
	var retried sessionBody
	decodeBody(t, resp, &retried)
	if retried.Result == nil || retried.Result.Succeeded != 3 || retried.Result.Failed != 0 {
		t.Fatalf("expected all items uploaded after retry, got %+v", retried.Result)
	}
	if env.storage.count() != 3 {
		t.Fatalf("expected 3 objects, got %d", env.storage.count())
	}
}

func TestE2ESessionRefusals(t *testing.T) {
	env := newTestServer(t)
	client := env.server.Client()

	completed := createSession(t, env, `{"load_id":"43","camera":"granted"}`, http.StatusConflict)
	if completed.State != "load_completed" {
		t.Fatalf("expected load_completed, got %s", completed.State)
	}

	denied := createSession(t, env, `{"load_id":"42","camera":"denied"}`, http.StatusForbidden)
	if denied.State != "permission_denied" {
		t.Fatalf("expected permission_denied, got %s", denied.State)
	}

	resp := doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/sessions/"+denied.SessionID+"/permissions", []byte(`{"camera":"granted"}`), authorized())
	expectStatus(t, resp, http.StatusOK)
	var granted sessionBody
	decodeBody(t, resp, &granted)
	if granted.State != "ready" {
		t.Fatalf("expected ready after granting camera, got %s", granted.State)
	}

	resp = doRequest(t, client, http.MethodPost, env.server.URL+"/api/v1/sessions", []byte(`{"camera":"maybe"}`), authorized())
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	resp.Body.Close()

	resp = doRequest(t, client, http.MethodGet, env.server.URL+"/api/v1/sessions/missing", nil, authorized())
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = doRequest(t, client, http.MethodDelete, env.server.URL+"/api/v1/sessions/"+denied.SessionID, nil, authorized())
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
}
