package api

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/converse-im/converse/internal/config"
	"github.com/converse-im/converse/internal/database"
	"github.com/converse-im/converse/internal/server"
	"github.com/converse-im/converse/internal/stats"
	"github.com/converse-im/converse/internal/storage"
	"github.com/converse-im/converse/internal/testutil"
	"github.com/converse-im/converse/internal/token"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("api-test-signing-key")

func newTestApp(t *testing.T, db database.ConverseRepository) (*ConverseApp, *http.ServeMux) {
	t.Helper()

	logger := testutil.TestLogger(t)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything)
	su.On("Incr", mock.Anything)
	su.On("Decr", mock.Anything)

	registry := server.NewRegistry(logger, su)
	dispatcher := server.NewDispatcher(registry, logger)
	gw := server.NewGateway(logger, db, registry, dispatcher, su, testSigningKey, nil)

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cfg, err := config.NewConfig("localhost:0", "postgres://test", base64.StdEncoding.EncodeToString(testSigningKey), nil, "uploads")
	require.NoError(t, err)

	mux := http.NewServeMux()
	app := NewConverseApp(mux, logger, gw, dispatcher, db, store, cfg)

	return app, mux
}

// authedRequest builds a request carrying a valid bearer token for userId.
func authedRequest(t *testing.T, method, target, body, userId string) *http.Request {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	tokenString, err := token.Create(testSigningKey, userId, time.Minute)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokenString)

	return req
}
