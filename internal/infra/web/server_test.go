//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-intelligence/internal/domain"
	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/infra/logging"
)

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*model.ProcessingJob
	err  error
}

func newMemJobs() *memJobs { return &memJobs{jobs: map[string]*model.ProcessingJob{}} }

func (m *memJobs) add(p model.JobPayload) (*model.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	job, err := model.NewJob("job-"+p.Document(), p, 3)
	if err != nil {
		return nil, err
	}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *memJobs) EnqueueIngest(_ context.Context, documentID string) (*model.ProcessingJob, error) {
	return m.add(model.IngestPayload{DocumentID: documentID})
}

func (m *memJobs) EnqueueExplain(_ context.Context, p model.ExplainPayload) (*model.ProcessingJob, error) {
	return m.add(p)
}

func (m *memJobs) Job(_ context.Context, id string) (*model.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

const testSecret = "test-operator-secret"

func newTestServer(jobs *memJobs, checks map[string]Check) (http.Handler, string) {
	auth := NewAuthManager(testSecret, time.Minute)
	tok, _ := auth.Mint("ops")
	return NewServer(jobs, auth, checks, logging.Nop()).Router(), tok
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	t.Run("health", func(t *testing.T) {
		h, _ := newTestServer(newMemJobs(), nil)
		rec := do(h, http.MethodGet, "/health", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get(traceHeader))
	})

	t.Run("trace id is echoed", func(t *testing.T) {
		h, _ := newTestServer(newMemJobs(), nil)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(traceHeader, "trace-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "trace-1", rec.Header().Get(traceHeader))
	})

	t.Run("ready reports each check", func(t *testing.T) {
		h, _ := newTestServer(newMemJobs(), map[string]Check{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
		})
		rec := do(h, http.MethodGet, "/ready", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body struct {
			OK     bool              `json:"ok"`
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.False(t, body.OK)
		assert.Equal(t, "ok", body.Checks["postgres"])
		assert.Equal(t, "dial tcp: refused", body.Checks["redis"])
	})

	t.Run("ready with healthy deps", func(t *testing.T) {
		h, _ := newTestServer(newMemJobs(), map[string]Check{
			"postgres": func(context.Context) error { return nil },
		})
		rec := do(h, http.MethodGet, "/ready", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true,"checks":{"postgres":"ok"}}`, rec.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		h, _ := newTestServer(newMemJobs(), nil)
		rec := do(h, http.MethodGet, "/metrics", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestJobAPI(t *testing.T) {
	t.Run("requires a bearer token", func(t *testing.T) {
		h, _ := newTestServer(newMemJobs(), nil)
		rec := do(h, http.MethodPost, "/api/v1/jobs/ingest", "", `{"document_id":"doc-1"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(h, http.MethodPost, "/api/v1/jobs/ingest", "not-a-jwt", `{"document_id":"doc-1"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another secret is rejected", func(t *testing.T) {
		h, _ := newTestServer(newMemJobs(), nil)
		other, err := NewAuthManager("someone-else", time.Minute).Mint("ops")
		require.NoError(t, err)
		rec := do(h, http.MethodGet, "/api/v1/jobs/x", other, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("enqueue ingest then fetch", func(t *testing.T) {
		jobs := newMemJobs()
		h, tok := newTestServer(jobs, nil)

		rec := do(h, http.MethodPost, "/api/v1/jobs/ingest", tok, `{"document_id":"doc-1"}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var created jobView
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
		assert.Equal(t, model.JobTypeIngest, created.Type)
		assert.Equal(t, model.JobStatusQueued, created.Status)
		assert.Equal(t, "doc-1", created.DocumentID)

		rec = do(h, http.MethodGet, "/api/v1/jobs/"+created.ID, tok, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var fetched jobView
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&fetched))
		assert.Equal(t, created.ID, fetched.ID)
		assert.JSONEq(t, `{"document_id":"doc-1"}`, string(fetched.Payload))
	})

	t.Run("enqueue explain", func(t *testing.T) {
		h, tok := newTestServer(newMemJobs(), nil)
		rec := do(h, http.MethodPost, "/api/v1/jobs/explain", tok,
			`{"document_id":"doc-2","output_id":"out-1","request_id":"r1","user_id":"u1"}`)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var created jobView
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
		assert.Equal(t, model.JobTypeExplain, created.Type)
	})

	t.Run("bad bodies are 400", func(t *testing.T) {
		h, tok := newTestServer(newMemJobs(), nil)
		assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/jobs/ingest", tok, `{`).Code)
		assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/jobs/ingest", tok, `{}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/jobs/ingest", tok, `{"document_id":"d","extra":1}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/jobs/explain", tok, `{"document_id":"d"}`).Code)
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		h, tok := newTestServer(newMemJobs(), nil)
		assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/jobs/nope", tok, "").Code)
	})

	t.Run("store failure is 500", func(t *testing.T) {
		jobs := newMemJobs()
		jobs.err = errors.New("db down")
		h, tok := newTestServer(jobs, nil)
		rec := do(h, http.MethodPost, "/api/v1/jobs/ingest", tok, `{"document_id":"doc-1"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})

	t.Run("not mounted without auth", func(t *testing.T) {
		h := NewServer(newMemJobs(), nil, nil, logging.Nop()).Router()
		assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/api/v1/jobs/ingest", "", `{"document_id":"d"}`).Code)
	})
}

func TestAuthManager(t *testing.T) {
	auth := NewAuthManager(testSecret, time.Minute)
	tok, err := auth.Mint("ops")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+tok)
	claims, err := auth.ParseFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, "operator", claims.Role)

	auth.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = auth.ParseFromRequest(req)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestRecover(t *testing.T) {
	h := Recover(logging.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
