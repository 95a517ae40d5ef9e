package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirana/kirana-backend/internal/catalog/client"
	"github.com/kirana/kirana-backend/pkg/config"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/logger"
)

func newTestClient(serverURL string) *client.OpenFoodFactsClient {
	return client.NewOpenFoodFactsClient(
		&config.CatalogConfig{BaseURL: serverURL},
		logger.New("test", "test"),
	)
}

func TestResolveName_CombinesBrandAndName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v0/product/8901000001.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":1,"product":{"product_name":"Toned Milk 500ml","brands":"Amul"}}`))
	}))
	defer server.Close()

	name, err := newTestClient(server.URL).ResolveName(context.Background(), "8901000001")
	require.NoError(t, err)
	assert.Equal(t, "Amul Toned Milk 500ml", name)
}

func TestResolveName_NoBrand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":1,"product":{"product_name":"Local Bread"}}`))
	}))
	defer server.Close()

	name, err := newTestClient(server.URL).ResolveName(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "Local Bread", name)
}

func TestResolveName_UnknownBarcode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":0,"product":{}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ResolveName(context.Background(), "404404")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestResolveName_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ResolveName(context.Background(), "123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
