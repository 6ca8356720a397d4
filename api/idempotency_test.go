package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

const createdBody = `{"id":"req-1"}`

// countingHandler answers every request with status and createdBody.
func countingHandler(status int, calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(createdBody))
	})
}

func idempotentPost(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/leave-requests", strings.NewReader(`{}`))
	req.Header.Set(HeaderIdempotencyKey, key)
	return req.WithContext(WithActor(req.Context(), empAgent))
}

func cachedJSON(t *testing.T, status int) string {
	t.Helper()
	data, err := json.Marshal(CachedResponse{Status: status, ContentType: "application/json", Body: createdBody})
	require.NoError(t, err)
	return string(data)
}

func TestIdempotency_FirstRequestIsStored(t *testing.T) {
	// GIVEN: A key redis has never seen
	// WHEN: The POST succeeds
	// THEN: The response is stored for 24h and the lock released

	rdb, mock := redismock.NewClientMock()
	cacheKey := IdempotencyCacheKey("/api/leave-requests", empAgent.ID, "k-1")
	lockKey := cacheKey + ":lock"

	mock.ExpectGet(cacheKey).RedisNil()
	mock.ExpectSetNX(lockKey, "locked", 30*time.Second).SetVal(true)
	mock.ExpectSet(cacheKey, cachedJSON(t, http.StatusCreated), 24*time.Hour).SetVal("OK")
	mock.ExpectDel(lockKey).SetVal(1)

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(countingHandler(http.StatusCreated, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentPost("k-1"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, createdBody, rec.Body.String())
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cacheKey := IdempotencyCacheKey("/api/leave-requests", empAgent.ID, "k-1")

	mock.ExpectGet(cacheKey).SetVal(cachedJSON(t, http.StatusCreated))

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(countingHandler(http.StatusCreated, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentPost("k-1"))

	assert.Equal(t, 0, calls)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, createdBody, rec.Body.String())
	assert.Equal(t, "true", rec.Header().Get(HeaderReplayed))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_InFlightDuplicate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cacheKey := IdempotencyCacheKey("/api/leave-requests", empAgent.ID, "k-1")

	mock.ExpectGet(cacheKey).RedisNil()
	mock.ExpectSetNX(cacheKey+":lock", "locked", 30*time.Second).SetVal(false)

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(countingHandler(http.StatusCreated, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentPost("k-1"))

	assert.Equal(t, 0, calls)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processing", resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_FailuresAreNotStored(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cacheKey := IdempotencyCacheKey("/api/leave-requests", empAgent.ID, "k-1")

	mock.ExpectGet(cacheKey).RedisNil()
	mock.ExpectSetNX(cacheKey+":lock", "locked", 30*time.Second).SetVal(true)
	mock.ExpectDel(cacheKey + ":lock").SetVal(1)

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(countingHandler(http.StatusConflict, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentPost("k-1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_RedisDownPassesThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cacheKey := IdempotencyCacheKey("/api/leave-requests", empAgent.ID, "k-1")

	mock.ExpectGet(cacheKey).SetErr(errors.New("connection refused"))

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(countingHandler(http.StatusCreated, &calls))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentPost("k-1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_IgnoresRequestsWithoutKeyOrNotPost(t *testing.T) {
	rdb, mock := redismock.NewClientMock()

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(countingHandler(http.StatusOK, &calls))

	req := httptest.NewRequest(http.MethodPost, "/api/leave-requests", strings.NewReader(`{}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/leave-requests/mine", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyCacheKey_ScopedByActor(t *testing.T) {
	a := IdempotencyCacheKey("/api/leave-requests", leave.EmployeeID("emp-1"), "k")
	b := IdempotencyCacheKey("/api/leave-requests", leave.EmployeeID("emp-2"), "k")
	assert.NotEqual(t, a, b)
	assert.Equal(t, "idemp:/api/leave-requests:emp-1:k", a)
}
