package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/repairshop-api/middleware"
	"github.com/kendall-kelly/repairshop-api/services"
	"github.com/kendall-kelly/repairshop-api/tests/testutil"
	"github.com/kendall-kelly/repairshop-api/utils"
	"github.com/kendall-kelly/repairshop-api/workflow"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiEnv struct {
	db     *gorm.DB
	fx     *testutil.Fixture
	feed   *services.MemoryChangeFeed
	orders *services.OrderService
	photos *services.MockPhotoStore
	router *gin.Engine
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	utils.UseJSONFieldNames()
	return gin.New()
}

// newAPIEnv serves the order routes as the seeded technician.
func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	e := &apiEnv{
		db:     db,
		fx:     testutil.Seed(t, db),
		feed:   services.NewMemoryChangeFeed(nil),
		photos: services.NewMockPhotoStore(),
	}

	repo := services.NewOrderRepository(db, e.feed, nil)
	comments := services.NewCommentLog(db)
	machine := workflow.NewMachine(repo, comments, services.NewLogNotifier(nil), nil)
	e.orders = services.NewOrderService(repo, comments, machine, services.NewMemorySnapshotCache(), time.Hour, time.Hour, nil)
	t.Cleanup(func() { _ = e.orders.Shutdown(context.Background()) })

	oc := NewOrderController(e.orders, services.NewAttachmentService(db, e.photos, nil), services.NewHub(e.feed, nil), nil)
	e.router = setupTestRouter()
	api := e.router.Group("/api/v1", testutil.MockAuthMiddleware(e.fx.Tech.Auth0ID, nil), middleware.LoadActor(db))
	oc.RegisterRoutes(api)
	return e
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "body: %s", w.Body.String())
	}
	return w, response
}

// createOrder returns the id of a new order at Reception.
func (e *apiEnv) createOrder(t *testing.T) string {
	t.Helper()
	w, resp := e.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"customer_id":  e.fx.Customer.ID,
		"equipment_id": e.fx.Equipment.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return orderData(resp)["id"].(string)
}

func (e *apiEnv) advance(t *testing.T, id string, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		w, _ := e.do(t, http.MethodPost, "/api/v1/orders/"+id+"/advance", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
}

// orderData digs the order out of an orderResponse envelope.
func orderData(resp map[string]interface{}) map[string]interface{} {
	return resp["data"].(map[string]interface{})["order"].(map[string]interface{})
}

func errorCode(resp map[string]interface{}) string {
	return resp["error"].(map[string]interface{})["code"].(string)
}
