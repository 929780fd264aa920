package srhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/registrycache"
)

func TestGetBySubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/subjects/orders-value/versions/latest", r.URL.Path)
		_ = json.NewEncoder(w).Encode(schemaResponse{
			Subject: "orders-value",
			Version: 1,
			Schema:  "syntax = \"proto3\";",
			ID:      42,
			References: []schemaReference{
				{Name: "shared.proto", Subject: "shared-value", Version: 3},
			},
		})
	}))
	defer srv.Close()

	client := New(srv.URL)
	result, err := client.GetBySubject(context.Background(), "orders-value")
	require.NoError(t, err)
	require.Equal(t, uint32(42), result.ID)
	require.Equal(t, []registrycache.Reference{{Name: "shared.proto", Subject: "shared-value", Version: 3}}, result.References)
}

func TestGetByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/schemas/ids/42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(schemaResponse{Schema: "syntax = \"proto3\";", ID: 42})
	}))
	defer srv.Close()

	client := New(srv.URL)
	result, err := client.GetByID(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "syntax = \"proto3\";", result.Schema)
}

func TestFetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_code":40403,"message":"schema not found"}`))
	}))
	defer srv.Close()

	client := New(srv.URL)
	_, err := client.GetByID(context.Background(), 1)
	require.Error(t, err)
}

func TestSetAuth_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "alice", username)
		require.Equal(t, "secret", password)
		_ = json.NewEncoder(w).Encode(schemaResponse{ID: 1, Schema: "x"})
	}))
	defer srv.Close()

	client := New(srv.URL, WithBasicAuth("alice", "secret"))
	_, err := client.GetByID(context.Background(), 1)
	require.NoError(t, err)
}
