package cnwactivation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestHTTPClient_CreateActivation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v3/activations" {
			t.Errorf("expected /v3/activations, got %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type: application/json, got %s", r.Header.Get("Content-Type"))
		}

		var req activationRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Key != "CNW-TEST-1234" {
			t.Errorf("expected license key CNW-TEST-1234, got %s", req.Key)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(activationResponse{ActivationToken: "a.b.c"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL + "/v3/")
	body, _ := json.Marshal(activationRequest{Key: "CNW-TEST-1234"})
	resp, err := client.CreateActivation(context.Background(), body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected status 201, got %d", resp.StatusCode)
	}
	if !resp.Success() {
		t.Error("expected Success() for 201")
	}
	var ar activationResponse
	if err := json.Unmarshal(resp.Body, &ar); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if ar.ActivationToken != "a.b.c" {
		t.Errorf("expected token a.b.c, got %q", ar.ActivationToken)
	}
}

func TestHTTPClient_UpdateAndDeleteActivation(t *testing.T) {
	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.URL.Path != "/activations/act-001" {
			t.Errorf("expected /activations/act-001, got %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if r.Method == http.MethodDelete && len(body) != 0 {
			t.Errorf("expected empty DELETE body, got %q", body)
		}
		if r.Method == http.MethodPatch && !bytes.Contains(body, []byte(`"meterAttributes"`)) {
			t.Errorf("expected PATCH body to carry meterAttributes, got %q", body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	body, _ := json.Marshal(activationRequest{})
	if _, err := client.UpdateActivation(context.Background(), "act-001", body); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := client.DeleteActivation(context.Background(), "act-001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if strings.Join(methods, ",") != "PATCH,DELETE" {
		t.Errorf("expected PATCH,DELETE, got %v", methods)
	}
}

func TestHTTPClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/releases/latest" {
			t.Errorf("expected /releases/latest, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("platform"); got != "linux" {
			t.Errorf("expected platform=linux, got %q", got)
		}
		json.NewEncoder(w).Encode(Release{Version: "1.2.3"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	resp, err := client.Get(context.Background(), "/releases/latest", url.Values{"platform": {"linux"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(resp.Body), "1.2.3") {
		t.Errorf("expected body to contain version, got %s", resp.Body)
	}
}

func TestHTTPClient_ErrorStatusIsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    CodeRevokedLicense,
			"message": "license revoked",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	resp, err := client.CreateActivation(context.Background(), []byte(`{}`))
	if err != nil {
		t.Fatalf("HTTP error statuses must not be transport errors: %v", err)
	}
	if resp.Success() {
		t.Error("expected Success() false for 400")
	}
	se := parseServerError(resp.StatusCode, resp.Body)
	if se.Code != CodeRevokedLicense {
		t.Errorf("expected code %s, got %s", CodeRevokedLicense, se.Code)
	}
	if se.Message != "license revoked" {
		t.Errorf("expected message 'license revoked', got %q", se.Message)
	}
}

func TestHTTPClient_ResponseBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), maxResponseBytes+4096))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	resp, err := client.Get(context.Background(), "/big", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Body) != maxResponseBytes {
		t.Errorf("expected body capped at %d bytes, got %d", maxResponseBytes, len(resp.Body))
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithTimeout(50*time.Millisecond))
	_, err := client.CreateActivation(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestHTTPClient_TimeoutAppliedAfterOptions(t *testing.T) {
	custom := &http.Client{Timeout: time.Hour}
	client := NewHTTPClient("http://localhost", WithTimeout(3*time.Second), WithHTTPClient(custom))
	if custom.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s on custom client, got %v", custom.Timeout)
	}
	if client.httpClient != custom {
		t.Error("expected custom http client to be used")
	}
}

func TestHTTPClient_CustomUserAgent(t *testing.T) {
	var receivedUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithUserAgent("my-app/2.0"))
	client.Get(context.Background(), "/", nil)

	if receivedUA != "my-app/2.0" {
		t.Errorf("expected User-Agent 'my-app/2.0', got %q", receivedUA)
	}
}

func TestHTTPClient_RateLimitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRateLimit(0.001, 1))
	if _, err := client.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("first request should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Get(ctx, "/", nil); err == nil {
		t.Fatal("expected rate limit wait to fail once the context expires")
	}
}

func TestParseServerError_NonJSON(t *testing.T) {
	se := parseServerError(http.StatusBadGateway, []byte("<html>bad gateway</html>"))
	if se.Code != "UNKNOWN" {
		t.Errorf("expected code UNKNOWN, got %s", se.Code)
	}
	if se.StatusCode != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", se.StatusCode)
	}
}
