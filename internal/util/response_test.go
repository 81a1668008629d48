package util

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zfogg/listingboard/internal/errors"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/listings/job/o/l/favorite", nil)
	return c, w
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED"},
		{fmt.Errorf("get: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{apperrors.Transient("update", fmt.Errorf("conn refused")), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		c, w := newTestContext()
		RespondWithError(c, tt.err)

		assert.Equal(t, tt.status, w.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tt.code, body.Code)
		assert.Len(t, c.Errors, 1)
	}
}

func TestActorFromContext(t *testing.T) {
	c, w := newTestContext()
	assert.Equal(t, "", ActorFromContext(c))

	_, ok := GetUserIDFromContext(c)
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, _ = newTestContext()
	c.Set(ContextUserIDKey, "user-1")
	id, ok := GetUserIDFromContext(c)
	assert.True(t, ok)
	assert.Equal(t, "user-1", id)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, 5, ParseInt(" 5 ", 1))
	assert.Equal(t, 1, ParseInt("x", 1))
	assert.Equal(t, 0.5, ParseFloat("0.5", 1))
	assert.True(t, ParseBool("TRUE", false))
	assert.False(t, ParseBool("maybe", false))
	assert.Equal(t, []string{"a", "b"}, SplitCSV(" a, ,b "))
}
