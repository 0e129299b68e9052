// Command tester replays synthetic vendor webhooks against a running lead
// intake service: conversation-ended events and signed payment events, at a
// configurable rate. Used for load testing and for exercising the rate
// limiter and signature verification end to end.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/payments"
	"github.com/casefunnel/lead-intake/pkg/logger"
)

// webhookTask is one request for a worker to send.
type webhookTask struct {
	kind string // "conversation" or "payment"
}

type counters struct {
	sent      atomic.Int64
	succeeded atomic.Int64
	limited   atomic.Int64
	failed    atomic.Int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the lead intake service")
	rate := flag.Int("rate", 20, "Target webhooks per second (total)")
	duration := flag.Duration("duration", 1*time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 10, "Number of concurrent workers")
	paymentShare := flag.Int("payment-share", 20, "Percentage of traffic sent to the payments webhook")
	paymentSecret := flag.String("payment-secret", "whsec_test", "Payments webhook signing secret")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	gofakeit.Seed(time.Now().UnixNano())

	verifier := payments.NewVerifier(*paymentSecret, 5*time.Minute)
	httpClient := &http.Client{Timeout: 30 * time.Second}
	stats := &counters{}

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(i interface{}) {
		defer wg.Done()
		task, ok := i.(webhookTask)
		if !ok {
			return
		}
		sendWebhook(httpClient, *baseURL, task, verifier, stats)
	}, ants.WithNonblocking(false), ants.WithMaxBlockingTasks(*rate*2))
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	logger.Log.Info("Starting webhook load test",
		zap.String("target", *baseURL),
		zap.Int("rate", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Int("payment_share_pct", *paymentShare),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	interval := time.Second / time.Duration(maxInt(*rate, 1))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.After(*duration)

loop:
	for {
		select {
		case <-ticker.C:
			task := webhookTask{kind: "conversation"}
			if rand.Intn(100) < *paymentShare {
				task.kind = "payment"
			}
			wg.Add(1)
			if err := pool.Invoke(task); err != nil {
				wg.Done()
				logger.Log.Warn("Failed to submit task", zap.Error(err))
			}
		case <-deadline:
			logger.Log.Info("Duration elapsed, draining in-flight requests")
			break loop
		case sig := <-sigChan:
			logger.Log.Info("Received signal, stopping", zap.String("signal", sig.String()))
			break loop
		}
	}

	wg.Wait()
	logger.Log.Info("Load test complete",
		zap.Int64("sent", stats.sent.Load()),
		zap.Int64("succeeded", stats.succeeded.Load()),
		zap.Int64("rate_limited", stats.limited.Load()),
		zap.Int64("failed", stats.failed.Load()),
	)
}

func sendWebhook(client *http.Client, baseURL string, task webhookTask, verifier *payments.Verifier, stats *counters) {
	var (
		path string
		body []byte
		sign bool
	)
	switch task.kind {
	case "payment":
		path = "/webhooks/payments"
		body = paymentPayload()
		sign = true
	default:
		path = "/webhooks/conversation"
		body = conversationPayload()
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		stats.failed.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if sign {
		req.Header.Set("X-Payment-Signature", verifier.Sign(time.Now(), body))
	}

	stats.sent.Add(1)
	resp, err := client.Do(req)
	if err != nil {
		stats.failed.Add(1)
		logger.Log.Debug("Request failed", zap.String("path", path), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		stats.limited.Add(1)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		stats.succeeded.Add(1)
	default:
		stats.failed.Add(1)
		logger.Log.Debug("Unexpected status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
	}
}

// conversationPayload builds a conversation-ended webhook. A slice of events
// use the older payload spellings so the probing logic gets exercised too.
func conversationPayload() []byte {
	conversationID := "conv_" + gofakeit.LetterN(16)

	switch rand.Intn(3) {
	case 0:
		return mustJSON(map[string]interface{}{
			"event_type":      "conversation.ended",
			"conversation_id": conversationID,
			"ended_at":        time.Now().UTC().Format(time.RFC3339),
		})
	case 1:
		return mustJSON(map[string]interface{}{
			"type": "transcription_ready",
			"data": map[string]interface{}{
				"conversationId": conversationID,
			},
		})
	default:
		return mustJSON(map[string]interface{}{
			"event": "completed",
			"conversation": map[string]interface{}{
				"id": conversationID,
			},
		})
	}
}

// paymentPayload builds a payments vendor event for a random firm customer.
func paymentPayload() []byte {
	types := []string{
		"checkout.session.completed",
		"customer.subscription.updated",
		"invoice.payment_succeeded",
		"invoice.payment_failed",
	}
	tiers := []string{model.TierStarter, model.TierProfessional, model.TierEnterprise}

	return mustJSON(map[string]interface{}{
		"id":   "evt_" + gofakeit.LetterN(20),
		"type": gofakeit.RandomString(types),
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"customer": "cus_" + gofakeit.LetterN(14),
				"status":   "active",
				"metadata": map[string]interface{}{
					"tier": gofakeit.RandomString(tiers),
				},
			},
		},
	})
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
