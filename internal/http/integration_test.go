package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

type tokenResponse struct {
	Token string `json:"token"`
}

type classResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	AvailableSeats int32   `json:"availableSeats"`
	Status         string  `json:"status"`
}

type enrollmentResponse struct {
	ID           string `json:"id"`
	StudentEmail string `json:"studentEmail"`
	ClassName    string `json:"className"`
}

type settlementBody struct {
	PaymentRecorded        bool   `json:"paymentRecorded"`
	EnrollmentRemoved      bool   `json:"enrollmentRemoved"`
	SeatsAdjusted          bool   `json:"seatsAdjusted"`
	AlreadySettled         bool   `json:"alreadySettled"`
	ReconciliationRequired bool   `json:"reconciliationRequired"`
	Error                  string `json:"error,omitempty"`
}

func TestEnrollmentSettlementFlow(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("MARKETPLACE_HTTP_ADDR", "http://127.0.0.1:8080")

	email := fmt.Sprintf("it-%d@demo.local", time.Now().UnixNano())
	token := issueToken(t, baseURL, email)

	// Register the caller so guards can resolve a role.
	resp, _ := doJSON(t, http.MethodPost, baseURL+"/users", "", map[string]string{
		"email": email, "name": "Integration User",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, baseURL+"/classes", token, map[string]interface{}{
		"name":           "Integration Pottery",
		"instructorName": "Integration User",
		"price":          25.0,
		"availableSeats": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create class status %d: %s", resp.StatusCode, body)
	}
	var class classResponse
	mustDecode(t, body, &class)

	resp, body = doJSON(t, http.MethodPost, baseURL+"/enrollments", token, map[string]string{
		"classId": class.ID,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create enrollment status %d: %s", resp.StatusCode, body)
	}
	var enrollment enrollmentResponse
	mustDecode(t, body, &enrollment)

	payload := map[string]interface{}{
		"classId":       class.ID,
		"enrollId":      enrollment.ID,
		"className":     class.Name,
		"amount":        class.Price,
		"transactionId": fmt.Sprintf("it-%d", time.Now().UnixNano()),
	}
	resp, body = doJSON(t, http.MethodPost, baseURL+"/payments", token, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settle status %d: %s", resp.StatusCode, body)
	}
	var result settlementBody
	mustDecode(t, body, &result)
	if !result.PaymentRecorded || !result.EnrollmentRemoved || !result.SeatsAdjusted {
		t.Fatalf("settle result %+v", result)
	}

	// The settled enrollment is gone.
	resp, _ = doJSON(t, http.MethodGet, baseURL+"/enrollments/"+enrollment.ID, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("settled enrollment status %d, want 404", resp.StatusCode)
	}

	// Replaying the same enrollment conflicts.
	resp, body = doJSON(t, http.MethodPost, baseURL+"/payments", token, payload)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("replay status %d: %s", resp.StatusCode, body)
	}
	mustDecode(t, body, &result)
	if !result.AlreadySettled {
		t.Fatalf("replay result %+v", result)
	}
}

func TestGuardsRejectAnonymousCallers(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	baseURL := getenv("MARKETPLACE_HTTP_ADDR", "http://127.0.0.1:8080")

	resp, _ := doJSON(t, http.MethodGet, baseURL+"/all-users", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous /all-users status %d, want 401", resp.StatusCode)
	}
}

func issueToken(t *testing.T, baseURL, email string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, baseURL+"/jwt", "", map[string]string{"email": email})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("issue token status %d: %s", resp.StatusCode, body)
	}
	var token tokenResponse
	mustDecode(t, body, &token)
	return token.Token
}

func doJSON(t *testing.T, method, url, token string, payload interface{}) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func mustDecode(t *testing.T, body []byte, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
