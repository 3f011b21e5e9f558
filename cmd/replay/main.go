// Command replay re-sends Jellyseerr issue webhooks to a running Remediarr
// instance. Payloads come either from a JSON file (or stdin) or from the
// WebhookReceived events persisted in the Remediarr database, which makes it
// easy to re-run a misbehaving delivery after a config change.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	target := flag.String("url", "http://localhost:8189", "Base URL of the Remediarr instance")
	file := flag.String("file", "", "Payload file to send (\"-\" reads stdin)")
	dbPath := flag.String("db", "", "Remediarr database to replay persisted deliveries from")
	limit := flag.Int("limit", 1, "Max deliveries to replay from the database (newest first)")
	secret := flag.String("secret", os.Getenv("JELLYSEERR_WEBHOOK_SECRET"), "Shared secret for HMAC signing")
	headerName := flag.String("header-name", "X-Jellyseerr-Token", "Static auth header name")
	headerValue := flag.String("header-value", os.Getenv("JELLYSEERR_WEBHOOK_HEADER_VALUE"), "Static auth header value")
	flag.Parse()

	if *file == "" && *dbPath == "" {
		log.Fatal("one of -file or -db is required")
	}

	var payloads [][]byte
	var err error
	switch {
	case *file != "":
		payloads, err = loadFromFile(*file)
	default:
		payloads, err = loadFromDatabase(*dbPath, *limit)
	}
	if err != nil {
		log.Fatal(err)
	}
	if len(payloads) == 0 {
		log.Fatal("no deliveries to replay")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	endpoint := *target + "/webhook/jellyseerr"

	for i, payload := range payloads {
		code, body, err := send(client, endpoint, payload, *secret, *headerName, *headerValue)
		if err != nil {
			log.Fatalf("delivery %d: %v", i+1, err)
		}
		fmt.Printf("delivery %d: HTTP %d %s\n", i+1, code, body)
	}
}

func loadFromFile(path string) ([][]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return [][]byte{data}, nil
}

// loadFromDatabase pulls the raw bodies of the most recent persisted
// deliveries. The database is opened read-only so a running instance is not
// disturbed.
func loadFromDatabase(path string, limit int) ([][]byte, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT event_data FROM events WHERE event_type = 'WebhookReceived' ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var eventData string
		if err := rows.Scan(&eventData); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		var data struct {
			RawBody string `json:"raw_body"`
		}
		if err := json.Unmarshal([]byte(eventData), &data); err != nil || data.RawBody == "" {
			log.Printf("skipping delivery with unreadable event data")
			continue
		}
		payloads = append(payloads, []byte(data.RawBody))
	}
	return payloads, rows.Err()
}

func send(client *http.Client, endpoint string, payload []byte, secret, headerName, headerValue string) (int, string, error) {
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if headerValue != "" {
		req.Header.Set(headerName, headerValue)
	}
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		req.Header.Set("X-Jellyseerr-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(bytes.TrimSpace(body)), nil
}
