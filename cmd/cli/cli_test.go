package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/listingboard/internal/models"
)

func TestParseListing(t *testing.T) {
	ref, err := parseListing("job/acme/dev")
	require.NoError(t, err)
	assert.Equal(t, models.ListingRef{Kind: models.KindJob, OwnerID: "acme", ListingID: "dev"}, ref)

	ref, err = parseListing("/partner/acme/agency/")
	require.NoError(t, err)
	assert.Equal(t, models.KindPartner, ref.Kind)

	for _, bad := range []string{"job/acme", "venue/acme/dev", "job//dev", "a/b/c/d"} {
		_, err := parseListing(bad)
		assert.Error(t, err, bad)
	}
}

func TestWSURL(t *testing.T) {
	defer func(api, token string) { apiURL, authToken = api, token }(apiURL, authToken)

	apiURL, authToken = "https://ledger.example.com/", "abc"
	u, err := wsURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://ledger.example.com/api/v1/ws?token=abc", u)

	apiURL, authToken = "http://localhost:8787", ""
	u, err = wsURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8787/api/v1/ws", u)
}

func TestCallReportsAPIErrors(t *testing.T) {
	defer func(token string) { authToken = token }(authToken)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","message":"authentication required"}`))
			return
		}
		_, _ = w.Write([]byte(`{"recorded":true}`))
	}))
	defer srv.Close()

	authToken = ""
	_, err := call("POST", srv.URL, true)
	assert.ErrorContains(t, err, "needs a token")

	authToken = "bad"
	_, err = call("POST", srv.URL, true)
	assert.ErrorContains(t, err, "authentication required")

	authToken = "good"
	body, err := call("POST", srv.URL, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recorded":true}`, string(body))
}
