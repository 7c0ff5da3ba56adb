package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fieldsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(url, "test-key", 2*time.Second, 0, 0)
}

func strPtr(s string) *string { return &s }

func TestUpdateJobSendsMultipartAndDecodesJob(t *testing.T) {
	var gotAuth, gotStatus, gotNotes, gotTimestamp string
	var gotPhotos []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/jobs/42", r.URL.Path)
		gotAuth = r.Header.Get("x-api-key")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotStatus = r.FormValue("status")
		gotNotes = r.FormValue("notes")
		gotTimestamp = r.FormValue("timestamp")
		for _, fh := range r.MultipartForm.File["photos"] {
			gotPhotos = append(gotPhotos, fh.Filename)
		}

		json.NewEncoder(w).Encode(models.Job{
			ID:        42,
			JobNumber: "JOB-42",
			Status:    models.JobStatusComplete,
			UpdatedAt: time.Now(),
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ts := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	job, err := client.UpdateJob(context.Background(), UpdateRequest{
		JobID:     42,
		Status:    strPtr(models.JobStatusComplete),
		Notes:     strPtr("replaced compressor"),
		Timestamp: ts,
		Photos: []models.PendingPhoto{
			{Filename: "before.jpg", ContentType: "image/jpeg", Data: []byte{0xFF, 0xD8}},
			{Filename: "after.jpg", ContentType: "image/jpeg", Data: []byte{0xFF, 0xD9}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), job.ID)
	assert.Equal(t, models.JobStatusComplete, job.Status)

	assert.Equal(t, "test-key", gotAuth)
	assert.Equal(t, models.JobStatusComplete, gotStatus)
	assert.Equal(t, "replaced compressor", gotNotes)
	assert.Equal(t, ts.Format(time.RFC3339Nano), gotTimestamp)
	assert.Equal(t, []string{"before.jpg", "after.jpg"}, gotPhotos)
}

func TestUpdateJobClassifiesServerErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, `{"error":"unknown status"}`, models.ErrValidationRejected},
		{"not found", http.StatusNotFound, `{"error":"job deleted"}`, models.ErrValidationRejected},
		{"conflict", http.StatusConflict, `{"error":"stale"}`, models.ErrValidationRejected},
		{"server error", http.StatusInternalServerError, "boom", models.ErrTransientNetwork},
		{"bad gateway", http.StatusBadGateway, "", models.ErrTransientNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.UpdateJob(context.Background(), UpdateRequest{JobID: 1, Status: strPtr("x")})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestUpdateJobTransportErrorIsTransient(t *testing.T) {
	// Nothing is listening here.
	client := newTestClient("http://127.0.0.1:1")
	_, err := client.UpdateJob(context.Background(), UpdateRequest{JobID: 1, Status: strPtr("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
}

func TestUpdateJobMalformedResponseIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.UpdateJob(context.Background(), UpdateRequest{JobID: 1, Status: strPtr("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
}

func TestGetJobAndListJobs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/jobs/7":
			json.NewEncoder(w).Encode(models.Job{ID: 7, JobNumber: "JOB-7"})
		case "/api/v1/jobs":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jobs": []models.Job{{ID: 1}, {ID: 2}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	job, err := client.GetJob(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "JOB-7", job.JobNumber)

	jobs, err := client.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "/healthz", r.URL.Path)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.Ping(context.Background()))

	server.Close()
	assert.ErrorIs(t, client.Ping(context.Background()), models.ErrTransientNetwork)
}

func TestRateLimiterBoundsRequestRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(models.Job{ID: 1})
	}))
	defer server.Close()

	// 1 request immediately, then 50 per second.
	client := NewClient(server.URL, "", time.Second, 50, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.GetJob(context.Background(), 1)
		require.NoError(t, err)
	}
	// Two waits at 20ms each.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
