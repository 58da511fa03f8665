package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/kendall-kelly/repairshop-api/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapWorkflowError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{workflow.ErrPhaseLocked, http.StatusConflict, "PHASE_LOCKED"},
		{workflow.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{workflow.ErrAlreadyLastPhase, http.StatusConflict, "ALREADY_LAST_PHASE"},
		{workflow.ErrAlreadyFirstPhase, http.StatusConflict, "ALREADY_FIRST_PHASE"},
		{workflow.ErrMissingReason, http.StatusBadRequest, "MISSING_REASON"},
		{workflow.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{workflow.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{workflow.ErrPersistence, http.StatusBadGateway, "PERSISTENCE_ERROR"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := mapWorkflowError(fmt.Errorf("%w: wrapped", tt.err))
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestCreateOrder(t *testing.T) {
	e := newAPIEnv(t)

	tests := []struct {
		name           string
		body           map[string]interface{}
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "Successfully create order",
			body:           map[string]interface{}{"customer_id": e.fx.Customer.ID, "equipment_id": e.fx.Equipment.ID, "note": "Does not turn on"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Missing equipment",
			body:           map[string]interface{}{"customer_id": e.fx.Customer.ID},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "Unknown equipment",
			body:           map[string]interface{}{"customer_id": e.fx.Customer.ID, "equipment_id": "nope"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := e.do(t, http.MethodPost, "/api/v1/orders", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, "Response body: %s", w.Body.String())
			if tt.expectedCode != "" {
				assert.False(t, resp["success"].(bool))
				assert.Equal(t, tt.expectedCode, errorCode(resp))
				return
			}
			assert.True(t, resp["success"].(bool))
			data := orderData(resp)
			assert.Equal(t, "reception", data["current_status"])
			assert.Equal(t, "50", data["review_fee"])
			assert.Equal(t, e.fx.Tech.ID, data["created_by"])

			perms := resp["data"].(map[string]interface{})["permissions"].(map[string]interface{})
			assert.True(t, perms["can_advance"].(bool))
			assert.False(t, perms["can_retreat"].(bool))
		})
	}

	t.Run("Validation details name the json field", func(t *testing.T) {
		_, resp := e.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{})
		details := resp["error"].(map[string]interface{})["details"].(map[string]interface{})
		assert.Equal(t, "customer_id is required", details["customer_id"])
		assert.Contains(t, details, "equipment_id")
	})
}

func TestCreateOrderRequiresRegisteredUser(t *testing.T) {
	e := newAPIEnv(t)
	e.db.Exec("DELETE FROM users")

	w, resp := e.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"customer_id": e.fx.Customer.ID, "equipment_id": e.fx.Equipment.ID,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "USER_NOT_REGISTERED", errorCode(resp))
}

func TestGetOrder(t *testing.T) {
	e := newAPIEnv(t)
	id := e.createOrder(t)

	w, resp := e.do(t, http.MethodGet, "/api/v1/orders/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, orderData(resp)["id"])
	assert.Empty(t, w.Header().Get("X-Snapshot"))

	w, resp = e.do(t, http.MethodGet, "/api/v1/orders/"+id+"?cached=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Snapshot"))
	assert.Equal(t, id, orderData(resp)["id"])

	w, resp = e.do(t, http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(resp))
}

func TestAdvanceAndRetreat(t *testing.T) {
	e := newAPIEnv(t)
	id := e.createOrder(t)

	w, resp := e.do(t, http.MethodPost, "/api/v1/orders/"+id+"/advance", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := resp["data"].(map[string]interface{})
	transition := data["transition"].(map[string]interface{})
	assert.Equal(t, "reception", transition["from"])
	assert.Equal(t, "diagnosis", transition["to"])
	assert.Equal(t, "Order moved to Diagnosis", transition["message"])
	assert.Equal(t, e.fx.Tech.ID, orderData(resp)["tech_reception"])

	t.Run("Retreat without reason", func(t *testing.T) {
		w, resp := e.do(t, http.MethodPost, "/api/v1/orders/"+id+"/retreat", map[string]interface{}{"reason": ""})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "MISSING_REASON", errorCode(resp))
	})

	t.Run("Retreat with reason", func(t *testing.T) {
		w, resp := e.do(t, http.MethodPost, "/api/v1/orders/"+id+"/retreat", map[string]interface{}{"reason": "Wrong serial number"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "reception", orderData(resp)["current_status"])
		assert.Nil(t, orderData(resp)["tech_reception"])

		w, resp = e.do(t, http.MethodGet, "/api/v1/orders/"+id+"/comments", nil)
		require.Equal(t, http.StatusOK, w.Code)
		comments := resp["data"].([]interface{})
		require.Len(t, comments, 1)
		comment := comments[0].(map[string]interface{})
		assert.Equal(t, "Wrong serial number", comment["text"])
		assert.Equal(t, "Diagnosis", comment["from_status"])
	})

	t.Run("Reception cannot retreat", func(t *testing.T) {
		w, resp := e.do(t, http.MethodPost, "/api/v1/orders/"+id+"/retreat", map[string]interface{}{"reason": "again"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "ALREADY_FIRST_PHASE", errorCode(resp))
	})
}

func TestFinalize(t *testing.T) {
	e := newAPIEnv(t)
	id := e.createOrder(t)

	w, resp := e.do(t, http.MethodPost, "/api/v1/orders/"+id+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(resp))

	e.advance(t, id, 4)
	w, resp = e.do(t, http.MethodPost, "/api/v1/orders/"+id+"/advance", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_LAST_PHASE", errorCode(resp))

	w, resp = e.do(t, http.MethodPost, "/api/v1/orders/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "finished", orderData(resp)["current_status"])
	assert.NotNil(t, orderData(resp)["delivery_date"])

	w, resp = e.do(t, http.MethodGet, "/api/v1/orders/"+id+"/permissions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	perms := resp["data"].(map[string]interface{})
	assert.Equal(t, "finished", perms["status"])
	assert.False(t, perms["can_advance"].(bool))
	assert.False(t, perms["can_retreat"].(bool))
}

func TestSaveNote(t *testing.T) {
	e := newAPIEnv(t)
	id := e.createOrder(t)

	w, resp := e.do(t, http.MethodPut, "/api/v1/orders/"+id+"/note", map[string]interface{}{"note": "too early"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PHASE_LOCKED", errorCode(resp))

	e.advance(t, id, 2)
	w, _ = e.do(t, http.MethodPut, "/api/v1/orders/"+id+"/note", map[string]interface{}{"note": "Call before repair"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	e.advance(t, id, 1)
	_, resp = e.do(t, http.MethodGet, "/api/v1/orders/"+id, nil)
	assert.Equal(t, "Call before repair", orderData(resp)["note"])
}
