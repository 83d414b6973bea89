package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileByPathCachesAcrossCalls(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"n1","properties":{"path":"foo.py"}}`))
	}))
	defer server.Close()

	client, err := New(server.URL, ":memory:", 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	n1, err := client.GetFileByPath(context.Background(), "foo.py")
	require.NoError(t, err)
	require.NotNil(t, n1)
	assert.Equal(t, "n1", n1.ID)

	n2, err := client.GetFileByPath(context.Background(), "foo.py")
	require.NoError(t, err)
	require.NotNil(t, n2)
	assert.Equal(t, 1, hits, "second call should be served from the local cache")
}

func TestGetFileByPathDegradesGracefullyWhenUnreachable(t *testing.T) {
	client, err := New("http://127.0.0.1:1", ":memory:", 200*time.Millisecond)
	require.NoError(t, err)
	defer client.Close()

	n, err := client.GetFileByPath(context.Background(), "foo.py")
	assert.NoError(t, err)
	assert.Nil(t, n)
}

func TestGetRelatedNodesNotFoundReturnsNilNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, err := New(server.URL, ":memory:", 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	nodes, err := client.GetRelatedNodes(context.Background(), "n1", "calls", 1)
	assert.NoError(t, err)
	assert.Nil(t, nodes)
}
