package router

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"library_pos_backend/internal/capture"
	"library_pos_backend/internal/decode"
	"library_pos_backend/internal/repositories"
	"library_pos_backend/internal/services"
	"library_pos_backend/pkg/metrics"
	"library_pos_backend/pkg/utils"
)

type memoryKV struct {
	mu     sync.Mutex
	values map[string]string
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", repositories.ErrKeyMissing
	}
	return v, nil
}

func (m *memoryKV) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

// echoGateway treats the frame payload as the barcode; "none" means nothing
// found and "fail" is a decoder failure.
func echoGateway() decode.Gateway {
	return decode.GatewayFunc(func(_ context.Context, f decode.Frame) (decode.Result, bool, error) {
		switch string(f.Data) {
		case "none":
			return decode.Result{}, false, nil
		case "fail":
			return decode.Result{}, false, decode.ErrTransport
		}
		return decode.Result{Barcode: string(f.Data), Format: "ean_13"}, true, nil
	})
}

type testServer struct {
	engine *gin.Engine
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	repo := repositories.NewBlobInventoryRepository(&memoryKV{values: map[string]string{}}, "library")
	inventory := services.NewInventoryService(repo, nil, services.CustomerPolicy{}, metrics.NewCheckoutMetrics(reg))
	bills := services.NewBillService(inventory)
	camera := capture.NewPushCamera(5 * time.Second)
	gateway := decode.Instrument(echoGateway(), metrics.NewScanMetrics(reg))
	manager := capture.NewManager(camera, gateway, capture.Options{Interval: time.Millisecond, MaxAttempts: 10000, MaxDuration: time.Minute}, metrics.NewScanMetrics(nil))
	scans := services.NewScanService(manager, camera, inventory, bills, 3)
	t.Cleanup(func() { _ = scans.Shutdown(context.Background()) })

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := utils.NewTokenManager("router-test", "library-pos", time.Hour)
	require.NoError(t, err)
	auth := services.NewAuthService(services.OperatorAccount{Username: "admin", PasswordHash: string(hash), Role: "Admin"}, tokens)

	engine := gin.New()
	Setup(engine, Dependencies{
		Tokens:    tokens,
		Auth:      auth,
		Inventory: inventory,
		Bills:     bills,
		Scans:     scans,
		Decoder:   gateway,
		Gatherer:  reg,
	})
	s := &testServer{engine: engine}

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp services.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	s.token = resp.AccessToken
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) addBook(t *testing.T, barcode, name, price string, qty int) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/books", gin.H{"barcode": barcode, "name": name, "price": price, "quantity": qty})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestPublicRoutes(t *testing.T) {
	s := newTestServer(t)
	s.token = ""

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ping", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/books", nil).Code)

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	metricsResp := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, metricsResp.Code)
}

func TestBookLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.addBook(t, "9781234567897", "Go in Action", "9.99", 5)

	w := s.do(t, http.MethodGet, "/api/v1/books/9781234567897", nil)
	require.Equal(t, http.StatusOK, w.Code)
	book := decodeBody(t, w)
	assert.Equal(t, "Go in Action", book["name"])
	assert.Equal(t, "9.99", book["price"])
	assert.EqualValues(t, 5, book["quantity"])

	w = s.do(t, http.MethodPost, "/api/v1/books", gin.H{"barcode": "9781234567897", "name": "Dup", "price": "1.00"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/books", gin.H{"barcode": "has space", "name": "Bad", "price": "1.00"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/books/restock", gin.H{"barcode": "9781234567897", "quantity_to_add": 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 8, decodeBody(t, w)["quantity"])

	w = s.do(t, http.MethodPost, "/api/v1/books/update_quantity", gin.H{"barcode": "9781234567897", "quantity": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decodeBody(t, w)["quantity"])

	w = s.do(t, http.MethodPost, "/api/v1/books/adjust_quantity", gin.H{"barcode": "9781234567897", "delta": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/books?q=action", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "9781234567897")

	w = s.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["total_books"])

	w = s.do(t, http.MethodPost, "/api/v1/books/delete", gin.H{"barcode": "9781234567897"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/books/9781234567897", nil).Code)
}

func TestProcessBillRejectsShortage(t *testing.T) {
	s := newTestServer(t)
	s.addBook(t, "A1", "Alpha", "10.00", 2)
	s.addBook(t, "B1", "Beta", "1.00", 1)

	w := s.do(t, http.MethodPost, "/api/v1/process_bill", gin.H{
		"items": []gin.H{
			{"barcode": "A1", "name": "Alpha", "price": "10.00", "quantity": 1},
			{"barcode": "B1", "name": "Beta", "price": "1.00", "quantity": 2},
		},
		"total": "12.00",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, []interface{}{"B1"}, body["failing_barcodes"])

	w = s.do(t, http.MethodPost, "/api/v1/process_bill", gin.H{
		"items":         []gin.H{{"barcode": "A1", "name": "Alpha", "price": "10.00", "quantity": 2}},
		"total":         20,
		"customer_name": "Jane",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body = decodeBody(t, w)
	assert.NotEmpty(t, body["transaction_id"])
	txn := body["transaction"].(map[string]interface{})
	assert.Equal(t, "admin", txn["processed_by"])
	assert.Equal(t, "Jane", txn["customer_name"])

	w = s.do(t, http.MethodGet, "/api/v1/transactions/"+body["transaction_id"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/export/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "transactions.csv")
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(w.Body.String()), "\n")+1)
}

func TestBillFlow(t *testing.T) {
	s := newTestServer(t)
	s.addBook(t, "A1", "Alpha", "10.00", 2)

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/bill/items", gin.H{"barcode": "A1"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := s.do(t, http.MethodPost, "/api/v1/bill/items", gin.H{"barcode": "A1"})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "OUT_OF_STOCK", body["error"].(map[string]interface{})["code"])
	assert.Equal(t, "20", body["bill"].(map[string]interface{})["total"])

	w = s.do(t, http.MethodPost, "/api/v1/bill/checkout", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	txn := decodeBody(t, w)["transaction"].(map[string]interface{})
	assert.Equal(t, "Walk-in Customer", txn["customer_name"])

	w = s.do(t, http.MethodGet, "/api/v1/books/A1", nil)
	assert.EqualValues(t, 0, decodeBody(t, w)["quantity"])

	w = s.do(t, http.MethodPost, "/api/v1/bill/checkout", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "EMPTY_BILL")
}

func TestScanFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.addBook(t, "9781234567897", "Scanned", "9.99", 5)

	w := s.do(t, http.MethodPost, "/api/v1/scan/bill/start", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/v1/scan/bill/camera", gin.H{"granted": true, "capabilities": gin.H{"zoom": true, "min_zoom": 1, "max_zoom": 3, "torch": true}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	image := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("9781234567897"))
	w = s.do(t, http.MethodPost, "/api/v1/scan/bill/frames", gin.H{"image": image})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result map[string]interface{}
	require.Eventually(t, func() bool {
		body := decodeBody(t, s.do(t, http.MethodGet, "/api/v1/scan/bill", nil))
		r, ok := body["result"].(map[string]interface{})
		if ok {
			result = r
		}
		return ok
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "added", result["mode"])
	assert.Equal(t, "9781234567897", result["barcode"])

	w = s.do(t, http.MethodGet, "/api/v1/bill", nil)
	assert.Contains(t, w.Body.String(), "9781234567897")

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/v1/scan/shelf/start", nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/v1/scan/add/torch", nil).Code)
}

func TestManualScanAndLogout(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/scan/add/manual", gin.H{"barcode": "NEW-BOOK"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "create", decodeBody(t, w)["mode"])

	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/v1/scan/add/start", nil).Code)
	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPost, "/api/v1/scan/bill/start", nil).Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decodeBody(t, w)["stopped_scanners"])

	w = s.do(t, http.MethodGet, "/api/v1/scan/add", nil)
	assert.Equal(t, "idle", decodeBody(t, w)["state"])
}

func TestScanBarcodeEndpoint(t *testing.T) {
	s := newTestServer(t)

	image := base64.StdEncoding.EncodeToString([]byte("ABC-12345"))
	w := s.do(t, http.MethodPost, "/api/v1/scan_barcode", gin.H{"image": image, "type": "add"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["detected"])
	assert.Equal(t, "ABC-12345", body["barcode"])

	w = s.do(t, http.MethodPost, "/api/v1/scan_barcode", gin.H{"image": base64.StdEncoding.EncodeToString([]byte("none"))})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["detected"])

	w = s.do(t, http.MethodPost, "/api/v1/scan_barcode", gin.H{"image": base64.StdEncoding.EncodeToString([]byte("fail"))})
	require.Equal(t, http.StatusBadGateway, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, false, body["detected"])
	assert.Equal(t, utils.ErrCodeBadGateway, body["code"])
	assert.NotEmpty(t, body["error"])

	w = s.do(t, http.MethodPost, "/api/v1/scan_barcode", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["error"])
}
