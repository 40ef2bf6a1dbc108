package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONResponse(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteJSONResponse(rr, []map[string]string{{"url": "https://a.example"}}, http.StatusOK)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"url":"https://a.example"}]`, rr.Body.String())
}

func TestWriteErrorResponse(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteErrorResponse(rr, "Not found", http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Not found", resp.Error)
}
