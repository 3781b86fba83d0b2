package compaction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenote-ai/notebook-platform/internal/model"
)

func TestHTTPSummarizer(t *testing.T) {
	var received summarizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(Summary{Summary: "Discussed entropy.", Title: "Entropy"})
	}))
	defer srv.Close()

	s := NewHTTPSummarizer(srv.URL)
	out, err := s.Summarize(context.Background(), []model.Message{
		{ID: "m1", Role: model.RoleUser, Content: "what is entropy?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Entropy", out.Title)
	assert.Equal(t, "Discussed entropy.", out.Summary)
	require.Len(t, received.Messages, 1)
	assert.Equal(t, "m1", received.Messages[0].ID)
}

func TestHTTPSummarizerNon2xxIsHardFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPSummarizer(srv.URL)
	_, err := s.Summarize(context.Background(), []model.Message{{ID: "m1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
