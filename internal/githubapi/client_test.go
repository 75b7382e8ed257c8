package githubapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListReadyIssues_UsesFixedDiscoveryLabel(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"number": 42, "title": "Add feature", "labels": []map[string]string{{"name": "agent-ready"}}},
		})
	}))
	defer srv.Close()

	c := New("tok")
	c.BaseURL = srv.URL
	issues, err := c.ListReadyIssues("owner/repo")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 42, issues[0].Number)
	assert.Equal(t, "owner/repo", issues[0].RepoName)
	assert.Contains(t, gotQuery, "labels=agent-ready")
}

func TestListReadyIssues_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New("tok")
	c.BaseURL = srv.URL
	_, err := c.ListReadyIssues("owner/repo")
	require.Error(t, err)
}

func TestUpdateLabels_AppliesRemoveThenAdd(t *testing.T) {
	var putBody []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"number": 1,
				"labels": []map[string]string{{"name": "agent-ready"}, {"name": "keep-me"}},
			})
		case http.MethodPut:
			_ = json.NewDecoder(r.Body).Decode(&putBody)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := New("tok")
	c.BaseURL = srv.URL
	err := c.UpdateLabels("owner/repo", 1, LabelUpdate{Add: []string{"claude-working"}, Remove: []string{"agent-ready"}})
	require.NoError(t, err)

	assert.Contains(t, putBody, "claude-working")
	assert.Contains(t, putBody, "keep-me")
	assert.NotContains(t, putBody, "agent-ready")
}

func TestUpdateLabels_IdempotentWhenReapplied(t *testing.T) {
	labels := []string{"agent-ready", "keep-me"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			ls := make([]map[string]string, len(labels))
			for i, l := range labels {
				ls[i] = map[string]string{"name": l}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"number": 1, "labels": ls})
		case http.MethodPut:
			var body []string
			_ = json.NewDecoder(r.Body).Decode(&body)
			labels = body
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := New("tok")
	c.BaseURL = srv.URL
	upd := LabelUpdate{Add: []string{"claude-working"}, Remove: []string{"agent-ready"}}

	require.NoError(t, c.UpdateLabels("owner/repo", 1, upd))
	firstResult := append([]string(nil), labels...)

	require.NoError(t, c.UpdateLabels("owner/repo", 1, upd))
	assert.ElementsMatch(t, firstResult, labels)
}

func TestCreateComment_PostsBody(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New("tok")
	c.BaseURL = srv.URL
	require.NoError(t, c.CreateComment("owner/repo", 1, "hello"))
	assert.Equal(t, "hello", gotBody["body"])
}
