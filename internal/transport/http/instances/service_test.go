package instances

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrix-server-go/internal/domain/instance/aggregate"
	"matrix-server-go/internal/domain/instance/service"
	"matrix-server-go/internal/domain/transmission"
	"matrix-server-go/internal/platform/storage"
	platformtesting "matrix-server-go/internal/platform/testing"
)

type sent struct {
	mode, source, endpoint string
}

type fakeSender struct {
	calls  []sent
	result transmission.Result
}

func (f *fakeSender) SendImageByURL(_ context.Context, imageURL, endpointURL string) transmission.Result {
	f.calls = append(f.calls, sent{"url", imageURL, endpointURL})
	return f.result
}

func (f *fakeSender) SendStoredImage(_ context.Context, imageID, endpointURL string) transmission.Result {
	f.calls = append(f.calls, sent{"stored", imageID, endpointURL})
	return f.result
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*gin.Engine, *fakeSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open(context.Background(), platformtesting.MemoryDSN(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })

	logger := platformtesting.SetupTestLogger(t)
	sender := &fakeSender{result: transmission.Result{Success: true}}
	svc, err := NewService(service.NewInstanceService(storage.NewInstanceRepository(db), logger), sender, logger)
	require.NoError(t, err)

	engine := gin.New()
	require.NoError(t, svc.Register(context.Background(), engine.Group("/api")))
	return engine, sender
}

func do(t *testing.T, engine *gin.Engine, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var env envelope
	_ = sonic.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func create(t *testing.T, engine *gin.Engine, name, ep string) aggregate.Instance {
	t.Helper()
	rec, env := do(t, engine, http.MethodPost, "/api/instances",
		`{"name":"`+name+`","endpoint":"`+ep+`","labels":{"floor":"2"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var inst aggregate.Instance
	require.NoError(t, sonic.Unmarshal(env.Data, &inst))
	return inst
}

func TestInstances_CRUD(t *testing.T) {
	engine, _ := setup(t)

	inst := create(t, engine, "lobby", "http://10.0.0.5/")
	assert.Equal(t, "http://10.0.0.5", inst.Endpoint)
	assert.Equal(t, map[string]string{"floor": "2"}, inst.Labels)

	rec, env := do(t, engine, http.MethodGet, "/api/instances/"+inst.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, env = do(t, engine, http.MethodPut, "/api/instances/"+inst.ID, `{"name":"hall"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated aggregate.Instance
	require.NoError(t, sonic.Unmarshal(env.Data, &updated))
	assert.Equal(t, "hall", updated.Name)
	assert.Equal(t, "http://10.0.0.5", updated.Endpoint)

	rec, env = do(t, engine, http.MethodGet, "/api/instances", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []aggregate.Instance
	require.NoError(t, sonic.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	rec, _ = do(t, engine, http.MethodDelete, "/api/instances/"+inst.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, engine, http.MethodGet, "/api/instances/"+inst.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestInstances_Validation(t *testing.T) {
	engine, _ := setup(t)

	rec, env := do(t, engine, http.MethodPost, "/api/instances", `{"name":"x","endpoint":"ftp://10.0.0.5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "invalid endpoint")

	rec, _ = do(t, engine, http.MethodPost, "/api/instances", `{"endpoint":"http://10.0.0.5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	inst := create(t, engine, "lobby", "http://10.0.0.5")
	rec, _ = do(t, engine, http.MethodPut, "/api/instances/"+inst.ID, `{"endpoint":"javascript:alert(1)"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, engine, http.MethodDelete, "/api/instances/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInstances_Display(t *testing.T) {
	engine, sender := setup(t)
	inst := create(t, engine, "lobby", "http://10.0.0.5")

	rec, _ := do(t, engine, http.MethodPost, "/api/instances/"+inst.ID+"/display", `{"imageUrl":"https://img.example.com/a.png"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	sender.result = transmission.Result{Error: "Image not found"}
	rec, _ = do(t, engine, http.MethodPost, "/api/instances/"+inst.ID+"/display", `{"imageId":"img-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Image not found"}`, rec.Body.String())

	require.Len(t, sender.calls, 2)
	assert.Equal(t, sent{"url", "https://img.example.com/a.png", "http://10.0.0.5"}, sender.calls[0])
	assert.Equal(t, sent{"stored", "img-1", "http://10.0.0.5"}, sender.calls[1])
}

func TestInstances_DisplayRequiresOneSource(t *testing.T) {
	engine, sender := setup(t)
	inst := create(t, engine, "lobby", "http://10.0.0.5")

	for _, body := range []string{`{}`, `{"imageUrl":"https://a/b.png","imageId":"x"}`, `{"imageId":"  "}`} {
		rec, _ := do(t, engine, http.MethodPost, "/api/instances/"+inst.ID+"/display", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec, _ := do(t, engine, http.MethodPost, "/api/instances/missing/display", `{"imageId":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, sender.calls)
}
