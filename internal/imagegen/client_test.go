package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/types"
)

func testClient(url string) *Client {
	cfg := config.Default().Image
	cfg.APIKey = "heurist-key"
	cfg.SubmitURL = url
	c := New(cfg)
	c.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return c
}

func TestParseJobURL(t *testing.T) {
	assert.Equal(t, "http://img/x.png", ParseJobURL(`"http://img/x.png"`))
	assert.Equal(t, "http://img/x.png", ParseJobURL("\"http://img/x.png\"\n"))
	assert.Equal(t, "http://img/x.png", ParseJobURL("http://img/x.png"))
	assert.Equal(t, "", ParseJobURL(`""`))
}

func TestNewJobRequest(t *testing.T) {
	c := testClient("http://unused")
	now := time.Unix(1_700_000_000, 0)

	req := c.NewJobRequest("a neon city", now)

	assert.Equal(t, 1024, req.ModelInput.SD.Width)
	assert.Equal(t, 1024, req.ModelInput.SD.Height)
	assert.Equal(t, 22, req.ModelInput.SD.NumIterations)
	assert.Equal(t, 7.5, req.ModelInput.SD.GuidanceScale)
	assert.Equal(t, "a neon city", req.ModelInput.SD.Prompt)
	assert.Equal(t, "BluePencilRealistic", req.ModelID)
	assert.Equal(t, now.Unix()+300, req.Deadline)
	assert.Equal(t, 1, req.Priority)
	assert.True(t, strings.HasPrefix(req.JobID, "job_"))
}

func TestSubmit(t *testing.T) {
	var got JobRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer heurist-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`"http://img/x.png"`))
	}))
	defer srv.Close()

	url, err := testClient(srv.URL).Submit(context.Background(), "a neon city")
	require.NoError(t, err)

	assert.Equal(t, "http://img/x.png", url)
	assert.Equal(t, "a neon city", got.ModelInput.SD.Prompt)
	assert.Equal(t, int64(1_700_000_300), got.Deadline)
}

func TestSubmit_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Submit(context.Background(), "a neon city")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSubmit_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`""`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Submit(context.Background(), "a neon city")
	assert.True(t, errors.Is(err, types.ErrEmptyResponse))
}

func TestSubmit_MissingConfig(t *testing.T) {
	c := testClient("http://unused")
	c.apiKey = ""

	_, err := c.Submit(context.Background(), "a neon city")
	assert.True(t, errors.Is(err, config.ErrMissingConfig))

	_, err = testClient("http://unused").Submit(context.Background(), "")
	assert.True(t, errors.Is(err, config.ErrMissingConfig))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	c := testClient("http://unused")

	data, err := c.Fetch(context.Background(), srv.URL+"/x.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)

	_, err = c.Fetch(context.Background(), srv.URL+"/missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
