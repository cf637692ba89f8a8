// Tiergate Gateway Receiver Example
//
// A minimal stand-in for the chat gateway Tiergate's courier delivers
// through. It verifies the HMAC signature on incoming requests, opens
// fake channels and logs delivered messages. Useful for local
// development without a real gateway.
//
// Usage:
//   export COURIER_SIGNING_SECRET="your_secret_here"
//   go run main.go
//
// Then point Tiergate at it: COURIER_GATEWAY_URL=http://localhost:9000

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

const replayWindow = 5 * time.Minute

type openChannelRequest struct {
	UserID string `json:"user_id"`
}

type attachment struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

type sendMessageRequest struct {
	ChannelID   string       `json:"channel_id"`
	Content     string       `json:"content"`
	Attachments []attachment `json:"attachments,omitempty"`
}

func main() {
	secret := os.Getenv("COURIER_SIGNING_SECRET")
	if secret == "" {
		log.Fatal("COURIER_SIGNING_SECRET environment variable is required")
	}

	http.HandleFunc("/v1/channels", openChannelHandler(secret))
	http.HandleFunc("/v1/messages", sendMessageHandler(secret))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting gateway receiver on :9000")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func openChannelHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := verifiedBody(w, r, secret)
		if !ok {
			return
		}

		var req openChannelRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		channelID := "dm-" + req.UserID
		log.Printf("✓ Opened channel %s for user %s", channelID, req.UserID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"channel_id": channelID})
	}
}

func sendMessageHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := verifiedBody(w, r, secret)
		if !ok {
			return
		}

		var req sendMessageRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		log.Printf("✓ Message to %s (%d attachments):", req.ChannelID, len(req.Attachments))
		log.Printf("  %s", req.Content)
		for _, a := range req.Attachments {
			log.Printf("  attachment: %s (%d bytes)", a.Filename, len(a.Data))
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "delivered"})
	}
}

// verifiedBody reads the request body and checks the courier signature.
// The signed canonical string is "{timestamp}.{body}".
func verifiedBody(w http.ResponseWriter, r *http.Request, secret string) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return nil, false
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Tiergate-Signature")
	tsHeader := r.Header.Get("X-Tiergate-Timestamp")
	if signature == "" || tsHeader == "" {
		log.Println("Missing signature headers")
		http.Error(w, "Missing signature", http.StatusUnauthorized)
		return nil, false
	}

	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		http.Error(w, "Invalid timestamp", http.StatusUnauthorized)
		return nil, false
	}

	now := time.Now().Unix()
	if diff := now - ts; diff > int64(replayWindow.Seconds()) || diff < -int64(replayWindow.Seconds()) {
		log.Println("Signature timestamp outside replay window")
		http.Error(w, "Stale signature", http.StatusUnauthorized)
		return nil, false
	}

	canonical := fmt.Sprintf("%d.%s", ts, string(body))
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		log.Println("Invalid signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return nil, false
	}

	return body, true
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
