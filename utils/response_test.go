package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		details     interface{}
		wantDetails bool
	}{
		{name: "Without details", details: nil, wantDetails: false},
		{name: "With details", details: map[string]string{"reason": "reason is required"}, wantDetails: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondError(c, http.StatusConflict, "PHASE_LOCKED", "locked", tt.details)

			assert.Equal(t, http.StatusConflict, w.Code)
			assert.True(t, c.IsAborted())

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body["success"].(bool))
			errBody := body["error"].(map[string]interface{})
			assert.Equal(t, "PHASE_LOCKED", errBody["code"])
			assert.Equal(t, "locked", errBody["message"])
			_, has := errBody["details"]
			assert.Equal(t, tt.wantDetails, has)
		})
	}
}

func TestRespondSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondSuccess(c, http.StatusCreated, gin.H{"id": "order-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"id":"order-1"}}`, w.Body.String())
}
