//go:build ignore

// seed-knowledge uploads a tenant's knowledge documents through the admin
// API so a fresh environment has something to answer from.
//
// Usage: go run scripts/seed-knowledge.go <knowledge-file.json>
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type KnowledgeFile struct {
	TenantID  string     `json:"tenant_id"`
	Documents []Document `json:"documents"`
}

type Document struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/seed-knowledge.go <knowledge-file.json>")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		fmt.Println("ADMIN_TOKEN is required (a JWT signed with ADMIN_JWT_SECRET)")
		os.Exit(1)
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("read knowledge file: %v\n", err)
		os.Exit(1)
	}
	var kf KnowledgeFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		fmt.Printf("parse knowledge file: %v\n", err)
		os.Exit(1)
	}
	if kf.TenantID == "" || len(kf.Documents) == 0 {
		fmt.Println("knowledge file needs tenant_id and at least one document")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	for _, doc := range kf.Documents {
		payload, _ := json.Marshal(map[string]string{
			"tenant_id": kf.TenantID,
			"source":    doc.Source,
			"content":   doc.Content,
		})
		req, err := http.NewRequest(http.MethodPost, apiURL+"/admin/documents", bytes.NewReader(payload))
		if err != nil {
			fmt.Printf("build request for %s: %v\n", doc.Source, err)
			os.Exit(1)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+adminToken)

		resp, err := client.Do(req)
		if err != nil {
			fmt.Printf("upload %s: %v\n", doc.Source, err)
			os.Exit(1)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			fmt.Printf("upload %s: status %d: %s\n", doc.Source, resp.StatusCode, body)
			os.Exit(1)
		}
		fmt.Printf("uploaded %s\n", doc.Source)
	}

	fmt.Printf("seeded %d documents for tenant %s\n", len(kf.Documents), kf.TenantID)
}
