// llmtest exercises the configured LLM providers from the command line:
// OpenAI first, then Gemini, using the same request shape the assistant
// sends in production.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/evolvian/assistant-platform/internal/assistant"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := assistant.CompletionRequest{
		System: []string{
			"Eres el asistente de una tienda en línea. Responde breve y claro.",
		},
		Messages: []assistant.ChatMessage{
			{Role: assistant.ChatRoleUser, Content: "Hola, ¿qué planes ofrecen?"},
			{Role: assistant.ChatRoleAssistant, Content: "Ofrecemos planes Starter, Pro y Enterprise. ¿Quieres detalles de alguno?"},
			{Role: assistant.ChatRoleUser, Content: "Sí, ¿cuánto cuesta el plan Pro?"},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		fmt.Println("[1] Testing OpenAI...")
		client, err := assistant.NewOpenAIClient(key, os.Getenv("OPENAI_CHAT_MODEL"))
		if err != nil {
			fmt.Printf("    failed to create OpenAI client: %v\n", err)
		} else {
			run(ctx, client, req)
		}
	} else {
		fmt.Println("[1] Skipping OpenAI test (OPENAI_API_KEY not set)")
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		fmt.Println("[2] Testing Gemini...")
		client, err := assistant.NewGeminiClient(ctx, key, os.Getenv("GEMINI_MODEL_ID"))
		if err != nil {
			fmt.Printf("    failed to create Gemini client: %v\n", err)
		} else {
			defer func() { _ = client.Close() }()
			run(ctx, client, req)
		}
	} else {
		fmt.Println("[2] Skipping Gemini test (GEMINI_API_KEY not set)")
	}
}

func run(ctx context.Context, client assistant.LLMClient, req assistant.CompletionRequest) {
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("    error: %v\n", err)
		return
	}
	fmt.Printf("    response (%v):\n    %s\n", elapsed.Round(time.Millisecond), resp.Text)
	fmt.Printf("    tokens: in=%d, out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
}
