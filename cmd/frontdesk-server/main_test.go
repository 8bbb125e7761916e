package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/frontdesk/frontdesk/internal/config"
	"github.com/frontdesk/frontdesk/internal/platform/kv"
	"github.com/frontdesk/frontdesk/internal/platform/websocket"
)

const (
	testHospital   = "6f1c1d8e-3a57-4c1b-9a53-2f0d7f9e0a11"
	testSigningKey = "0123456789abcdef0123456789abcdef"
)

func testConfig(env, authMode string) *config.Config {
	return &config.Config{
		Port:             "0",
		Env:              env,
		StoreDriver:      config.StoreLevelDB,
		AuthMode:         authMode,
		AuthSigningKey:   testSigningKey,
		DevHospitalID:    testHospital,
		CORSOrigins:      []string{"http://localhost:3000"},
		RateLimitRPS:     100,
		RateLimitBurst:   100,
		RequestTimeout:   5 * time.Second,
		HospitalTimezone: "UTC",
		DailyCapacity:    15,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	kvs, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	st := newKVStore(kvs)
	t.Cleanup(st.close)

	e, err := newServer(cfg, st, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return e
}

func do(e *echo.Echo, method, path, body, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestServer_Health(t *testing.T) {
	e := newTestServer(t, testConfig("development", ""))

	rec, _ := do(e, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}

	rec, _ = do(e, http.MethodGet, "/health/db", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from store health, got %d", rec.Code)
	}
}

func TestServer_AdmitAndDischarge(t *testing.T) {
	e := newTestServer(t, testConfig("development", ""))

	body := `{"name":"Asha","mobile":"9876543210","treatmentRecords":[
		{"treatment_for":"fever","date":"2024-03-01T00:00:00Z","doctorFees":500,
		 "room":{"roomNo":"1","bedNo":"A","roomCategory":"general","roomPrice":1000},
		 "bottles":{"count":2,"price":50}},
		{"treatment_for":"fever","date":"2024-03-02T00:00:00Z","doctorFees":300,
		 "medicines":[{"name":"m","quantity":2,"price":20}]}]}`
	rec, out := do(e, http.MethodPost, "/api/v1/patients", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id := out["patient"].(map[string]interface{})["id"].(string)

	rec, out = do(e, http.MethodPost, "/api/v1/patients/"+id+"/discharge", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if bill := out["summary"].(map[string]interface{})["totalBill"].(float64); bill != 1940 {
		t.Errorf("expected total bill 1940, got %v", bill)
	}

	rec, out = do(e, http.MethodPost, "/api/v1/patients/"+id+"/discharge", "", "")
	if rec.Code != http.StatusNotFound || out["success"] != false {
		t.Errorf("expected 404 failure envelope, got %d %v", rec.Code, out)
	}
}

func TestServer_ValidationEnvelope(t *testing.T) {
	e := newTestServer(t, testConfig("development", ""))

	rec, out := do(e, http.MethodPost, "/api/v1/appointments",
		`{"patientName":"R","mobile":"123","appointmentDate":"2099-01-01","appointmentTime":"10:00"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if out["success"] != false || out["message"] != "Mobile number must be exactly 10 digits" {
		t.Errorf("unexpected envelope %v", out)
	}
}

func TestServer_JWT(t *testing.T) {
	e := newTestServer(t, testConfig("production", "jwt"))

	rec, out := do(e, http.MethodGet, "/api/v1/patients/active", "", "")
	if rec.Code != http.StatusUnauthorized || out["success"] != false {
		t.Fatalf("expected 401 envelope, got %d %v", rec.Code, out)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   testHospital,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	rec, out = do(e, http.MethodGet, "/api/v1/patients/active", "", signed)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if patients, ok := out["patients"].([]interface{}); !ok || len(patients) != 0 {
		t.Errorf("expected empty patient list, got %v", out["patients"])
	}

	// Health stays public.
	if rec, _ := do(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Errorf("expected public health check, got %d", rec.Code)
	}
}

func TestServer_BadTimezone(t *testing.T) {
	cfg := testConfig("development", "")
	cfg.HospitalTimezone = "Mars/Olympus"
	kvs, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	st := newKVStore(kvs)
	defer st.close()

	if _, err := newServer(cfg, st, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown time zone")
	}
}

func TestServer_LiveFeed(t *testing.T) {
	e := newTestServer(t, testConfig("development", ""))
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	body := `{"patientName":"Ravi","mobile":"9876543210","appointmentDate":"2099-01-01","appointmentTime":"10:00"}`
	resp, err := http.Post(server.URL+"/api/v1/appointments", echo.MIMEApplicationJSON, strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev websocket.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "appointment.booked" || ev.ResourceType != "Appointment" {
		t.Errorf("unexpected event %+v", ev)
	}
}
