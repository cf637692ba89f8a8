//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tiergate/tiergate/internal/auth"
	"github.com/tiergate/tiergate/internal/model"
	"github.com/tiergate/tiergate/internal/repository"
)

type apiKeyCreateResponse struct {
	ID     string   `json:"id"`
	Key    string   `json:"key"`
	Scopes []string `json:"scopes"`
}

type verifyResponse struct {
	UserID     string    `json:"user_id"`
	Tiers      []string  `json:"tiers"`
	VerifiedAt time.Time `json:"verified_at"`
}

type statusResponse struct {
	UserID string   `json:"user_id"`
	Mode   string   `json:"mode"`
	Tiers  []string `json:"tiers"`
}

type filesResponse struct {
	UserID string `json:"user_id"`
	Files  []struct {
		Name string `json:"name"`
		Tier string `json:"tier"`
		URL  string `json:"url"`
	} `json:"files"`
	PageSize int `json:"page_size"`
}

type expiryResponse struct {
	UserID string    `json:"user_id"`
	Expiry time.Time `json:"expiry"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestE2ESmoke(t *testing.T) {
	baseURL := envOrDefault("TIERGATE_BASE_URL", "http://localhost:8080")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatalf("DATABASE_URL is required for e2e tests")
	}

	bootstrapKey := bootstrapAdminKey(t, dbURL)
	testKey := createAPIKey(t, baseURL, bootstrapKey)

	userID := fmt.Sprintf("e2e-%d", time.Now().UnixNano())

	// An unknown user starts unverified with no files.
	status := getStatus(t, baseURL, testKey, userID)
	if status.Mode != "unverified" {
		t.Fatalf("expected unverified mode for new user, got %q", status.Mode)
	}

	// Admin grant opens the full catalog.
	grant := adminGrant(t, baseURL, testKey, userID)
	if len(grant.Tiers) == 0 {
		t.Fatalf("admin grant returned no tiers")
	}

	status = getStatus(t, baseURL, testKey, userID)
	if status.Mode != "tier_scoped" {
		t.Fatalf("expected tier_scoped mode after grant, got %q", status.Mode)
	}
	if len(status.Tiers) != len(grant.Tiers) {
		t.Fatalf("status tiers %v do not match grant tiers %v", status.Tiers, grant.Tiers)
	}

	files := getFiles(t, baseURL, testKey, userID)
	if len(files.Files) == 0 {
		t.Fatalf("expected files after admin grant")
	}

	// A ban dominates the grant.
	adminBan(t, baseURL, testKey, userID, 1)

	status = getStatus(t, baseURL, testKey, userID)
	if status.Mode != "denied" {
		t.Fatalf("expected denied mode while banned, got %q", status.Mode)
	}
	assertFilesDenied(t, baseURL, testKey, userID)

	// Lifting the ban restores the grant.
	adminUnban(t, baseURL, testKey, userID)

	files = getFiles(t, baseURL, testKey, userID)
	if len(files.Files) == 0 {
		t.Fatalf("expected files after unban")
	}
}

// TestE2ETempAccessExpiry validates that temporary access is honored and
// its expiry is returned.
func TestE2ETempAccessExpiry(t *testing.T) {
	baseURL := envOrDefault("TIERGATE_BASE_URL", "http://localhost:8080")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatalf("DATABASE_URL is required for e2e tests")
	}

	bootstrapKey := bootstrapAdminKey(t, dbURL)
	userID := fmt.Sprintf("e2e-temp-%d", time.Now().UnixNano())

	payload := map[string]any{"user_id": userID, "days": 7, "actor_id": "e2e"}
	var resp expiryResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/admin/temp-access", bootstrapKey, payload, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from temp access grant, got %d", status)
	}

	wantExpiry := time.Now().Add(7 * 24 * time.Hour)
	if diff := resp.Expiry.Sub(wantExpiry); diff > time.Minute || diff < -time.Minute {
		t.Fatalf("expiry %v not within a minute of %v", resp.Expiry, wantExpiry)
	}

	st := getStatus(t, baseURL, bootstrapKey, userID)
	if st.Mode != "full_catalog" {
		t.Fatalf("expected full_catalog mode with temp access, got %q", st.Mode)
	}
}

// TestE2ENoSecretsInResponses validates that API keys are never echoed
// back in response bodies.
func TestE2ENoSecretsInResponses(t *testing.T) {
	baseURL := envOrDefault("TIERGATE_BASE_URL", "http://localhost:8080")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatalf("DATABASE_URL is required for e2e tests")
	}

	bootstrapKey := bootstrapAdminKey(t, dbURL)
	client := &http.Client{Timeout: 10 * time.Second}

	fakeKey := "tg_live_fake_" + strings.Repeat("x", 32)
	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/files?user_id=e2e-secrets", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+fakeKey)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if strings.Contains(string(body), fakeKey) {
		t.Error("SECURITY: error response leaked the Authorization header value")
	}

	req2, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/status?user_id=e2e-secrets", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req2.Header.Set("Authorization", "Bearer "+bootstrapKey)

	resp2, err := client.Do(req2)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body2, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()

	if strings.Contains(string(body2), bootstrapKey) {
		t.Error("SECURITY: response echoed back the API key")
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func bootstrapAdminKey(t *testing.T, dbURL string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer repo.Close()

	generated, err := auth.GenerateAPIKey(auth.EnvLive)
	if err != nil {
		t.Fatalf("generate api key: %v", err)
	}

	apiKey := &model.APIKey{
		ID:        ulid.Make().String(),
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		Scopes:    []string{model.ScopeAdmin},
		Name:      "e2e-bootstrap",
		CreatedAt: time.Now().UTC(),
	}

	if err := repo.CreateAPIKey(ctx, apiKey); err != nil {
		t.Fatalf("create api key: %v", err)
	}

	return generated.Plaintext
}

func createAPIKey(t *testing.T, baseURL, bootstrapKey string) string {
	t.Helper()

	payload := map[string]any{
		"name":   "e2e-key",
		"scopes": []string{"admin"},
	}

	var resp apiKeyCreateResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/admin/keys", bootstrapKey, payload, &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from api key create, got %d", status)
	}
	if resp.Key == "" {
		t.Fatalf("api key response missing key")
	}
	return resp.Key
}

func adminGrant(t *testing.T, baseURL, apiKey, userID string) verifyResponse {
	t.Helper()

	payload := map[string]any{"user_id": userID, "actor_id": "e2e"}
	var resp verifyResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/admin/grants", apiKey, payload, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from grant, got %d", status)
	}
	return resp
}

func adminBan(t *testing.T, baseURL, apiKey, userID string, days int) {
	t.Helper()

	payload := map[string]any{"user_id": userID, "days": days, "actor_id": "e2e"}
	var resp expiryResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/admin/bans", apiKey, payload, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from ban, got %d", status)
	}
	if !resp.Expiry.After(time.Now()) {
		t.Fatalf("ban expiry %v is not in the future", resp.Expiry)
	}
}

func adminUnban(t *testing.T, baseURL, apiKey, userID string) {
	t.Helper()

	url := fmt.Sprintf("%s/api/v1/admin/bans/%s?actor_id=e2e", baseURL, userID)
	status := doJSON(t, http.MethodDelete, url, apiKey, nil, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 from unban, got %d", status)
	}
}

func getStatus(t *testing.T, baseURL, apiKey, userID string) statusResponse {
	t.Helper()

	var resp statusResponse
	status := doJSON(t, http.MethodGet, baseURL+"/api/v1/status?user_id="+userID, apiKey, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from status, got %d", status)
	}
	return resp
}

func getFiles(t *testing.T, baseURL, apiKey, userID string) filesResponse {
	t.Helper()

	var resp filesResponse
	status := doJSON(t, http.MethodGet, baseURL+"/api/v1/files?user_id="+userID, apiKey, nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from files, got %d", status)
	}
	return resp
}

func assertFilesDenied(t *testing.T, baseURL, apiKey, userID string) {
	t.Helper()

	var resp errorResponse
	status := doJSON(t, http.MethodGet, baseURL+"/api/v1/files?user_id="+userID, apiKey, nil, &resp)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 from files while banned, got %d", status)
	}
	if resp.Code != "ACCESS_DENIED" {
		t.Fatalf("expected ACCESS_DENIED code, got %q", resp.Code)
	}
}

func doJSON(t *testing.T, method, url, apiKey string, body any, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		buf = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil && resp.ContentLength != 0 {
			t.Fatalf("decode response: %v", err)
		}
	}

	return resp.StatusCode
}
