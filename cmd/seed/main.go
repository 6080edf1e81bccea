// Package main seeds a running price tracker with a demo account, a handful
// of tracked products and, when Kafka is reachable, a few weeks of price
// observations that flow in through the price feed like real updates would.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/PriceTracker/internal/event"
	"github.com/utafrali/PriceTracker/pkg/httpclient"
	pkgkafka "github.com/utafrali/PriceTracker/pkg/kafka"
)

// --------------------------------------------------------------------------
// Configuration helpers
// --------------------------------------------------------------------------

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return fallback
}

// --------------------------------------------------------------------------
// HTTP helpers
// --------------------------------------------------------------------------

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiClient struct {
	http    *httpclient.Client
	baseURL string
	token   string
}

// call sends body as JSON and decodes the envelope's data into out. The
// returned status is 0 on transport errors.
func (c *apiClient) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode != http.StatusNoContent {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if env.Error != nil {
		return resp.StatusCode, fmt.Errorf("HTTP %d %s: %s", resp.StatusCode, env.Error.Code, env.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// --------------------------------------------------------------------------
// Seed data definitions
// --------------------------------------------------------------------------

type productDef struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	CurrentPrice string `json:"current_price"`
	ImageURL     string `json:"image_url,omitempty"`
	Category     string `json:"category,omitempty"`
}

var products = []productDef{
	{Name: "Noise Cancelling Headphones", URL: "https://shop.example.com/p/headphones-nc700", CurrentPrice: "279.00", Category: "Audio"},
	{Name: "Mechanical Keyboard", URL: "https://shop.example.com/p/keyboard-tkl", CurrentPrice: "129.99", Category: "Computers"},
	{Name: "Espresso Machine", URL: "https://shop.example.com/p/espresso-pro", CurrentPrice: "549.00", Category: "Kitchen"},
	{Name: "Trail Running Shoes", URL: "https://shop.example.com/p/trail-runner-4", CurrentPrice: "89.95", Category: "Sports"},
	{Name: "E-Reader", URL: "https://shop.example.com/p/ereader-paper", CurrentPrice: "149.99"},
}

type dashboardView struct {
	All struct {
		Cards []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"cards"`
	} `json:"all"`
}

// --------------------------------------------------------------------------
// main
// --------------------------------------------------------------------------

func main() {
	log.SetFlags(log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[seed] ")

	apiURL := strings.TrimRight(getEnv("SEED_API_URL", "http://localhost:8010"), "/")
	email := getEnv("SEED_EMAIL", "demo@pricetracker.local")
	password := getEnv("SEED_PASSWORD", "demo-password")
	brokers := getEnv("KAFKA_BROKERS", "")
	days := getEnvInt("SEED_HISTORY_DAYS", 30)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "PriceTracker-Seed/1.0"
	api := &apiClient{http: httpclient.New(cfg), baseURL: apiURL}

	// ---------------------------------------------------------------
	// 1. Sign up the demo user, or sign in when it already exists
	// ---------------------------------------------------------------
	creds := map[string]string{"email": email, "password": password}
	var session struct {
		AccessToken string `json:"access_token"`
	}
	status, err := api.call(ctx, http.MethodPost, "/api/v1/auth/signup", creds, &session)
	if status == http.StatusConflict {
		log.Printf("User %s exists, signing in...", email)
		_, err = api.call(ctx, http.MethodPost, "/api/v1/auth/signin", creds, &session)
	}
	if err != nil {
		log.Fatalf("authenticate %s: %v", email, err)
	}
	api.token = session.AccessToken
	log.Printf("Signed in as %s.", email)

	// ---------------------------------------------------------------
	// 2. Track products through the add-product dialog
	// ---------------------------------------------------------------
	var view dashboardView
	if _, err := api.call(ctx, http.MethodGet, "/api/v1/dashboard", nil, &view); err != nil {
		log.Fatalf("load dashboard: %v", err)
	}
	tracked := make(map[string]string, len(view.All.Cards))
	for _, c := range view.All.Cards {
		tracked[c.Name] = c.ID
	}

	log.Println("Seeding products...")
	for _, p := range products {
		if _, ok := tracked[p.Name]; ok {
			log.Printf("  Skipping %q (already tracked)", p.Name)
			continue
		}
		if _, err := api.call(ctx, http.MethodPost, "/api/v1/dashboard/products", p, &view); err != nil {
			log.Printf("  WARNING: product %q: %v", p.Name, err)
			continue
		}
		for _, c := range view.All.Cards {
			tracked[c.Name] = c.ID
		}
		log.Printf("  Product: %s (id=%s)", p.Name, tracked[p.Name])
	}

	// ---------------------------------------------------------------
	// 3. Publish price observations
	// ---------------------------------------------------------------
	if brokers == "" || days == 0 {
		log.Println("KAFKA_BROKERS not set, skipping price history.")
		return
	}

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(strings.Split(brokers, ",")), nil)
	defer producer.Close()

	// #nosec G404 -- demo data
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	published := 0
	now := time.Now().UTC()
	for _, p := range products {
		id, ok := tracked[p.Name]
		if !ok {
			continue
		}
		price := decimal.RequireFromString(p.CurrentPrice)
		batch := make([]*pkgkafka.Event, 0, days+1)
		for d := days; d >= 0; d-- {
			// random walk within +/-4% per day
			step := decimal.NewFromFloat(1 + (rng.Float64()-0.5)*0.08)
			price = price.Mul(step).Round(2)

			data := event.PriceObservedData{ProductID: id, Price: price, ObservedAt: now.AddDate(0, 0, -d)}
			evt, err := pkgkafka.NewEvent(event.TopicPriceObserved, id, event.AggregateTypeProduct, "seed", data)
			if err != nil {
				log.Fatalf("build event: %v", err)
			}
			batch = append(batch, evt.WithMetadata("origin", "seed"))
		}
		if err := producer.PublishBatch(ctx, event.TopicPriceObserved, batch...); err != nil {
			log.Fatalf("publish observations for %s: %v", p.Name, err)
		}
		published += len(batch)
	}
	log.Printf("Published %d price observations to %s.", published, event.TopicPriceObserved)
}
