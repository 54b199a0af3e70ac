package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cbodonnell/trustecho/pkg/game"
	"github.com/cbodonnell/trustecho/pkg/game/types"
	"github.com/cbodonnell/trustecho/pkg/store"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(s store.Store, pool *game.SituationPool) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/situations", handleListSituations(pool)).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{roomCode}", handleGetRoom(s)).Methods(http.MethodGet)
	return router
}

func TestHandleHealthz(t *testing.T) {
	router := newTestRouter(store.NewInMemoryStore(), game.NewDefaultSituationPool())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleListSituations(t *testing.T) {
	router := newTestRouter(store.NewInMemoryStore(), game.NewDefaultSituationPool())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/situations", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var situations []game.Situation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &situations))
	assert.Len(t, situations, 5)
}

func TestHandleGetRoom(t *testing.T) {
	s := store.NewInMemoryStore()
	router := newTestRouter(s, game.NewDefaultSituationPool())

	g, err := s.CreateGame(context.Background(), "ABCD")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/abcd", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var got types.Game
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, g.ID, got.ID)
	assert.Equal(t, types.GameStatusWaiting, got.Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/QQQQ", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
