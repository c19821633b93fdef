package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	minOrders     = 20
	maxOrders     = 120
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var (
	symbols = []string{"CLV", "SHRA", "SHRB", "BOND"}
	sides   = []string{"buy", "sell"}
	modes   = []string{"vault", "approval"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
	mu         sync.Mutex
}

func (rs *routeStats) record(d time.Duration, ok bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if !ok {
		rs.failures++
	}
}

// calculate computes min, max, mean and p95 from recorded durations.
func (rs *routeStats) calculate() (min, max, mean, p95 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var total time.Duration
	for _, d := range rs.durations {
		total += d
	}
	mean = total / time.Duration(len(rs.durations))
	p95 = rs.durations[len(rs.durations)*95/100]
	return min, max, mean, p95
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type simClient struct {
	http  *http.Client
	stats map[string]*routeStats
}

func newSimClient() *simClient {
	return &simClient{
		http: &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"register": {name: "POST /auth/register"},
			"token":    {name: "POST /auth/token"},
			"order":    {name: "POST /orders"},
			"book":     {name: "GET /orderbook"},
		},
	}
}

func (c *simClient) post(route, path, token string, body interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, serverAddress+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.stats[route].record(elapsed, false)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	ok := err == nil && resp.StatusCode < 300
	c.stats[route].record(elapsed, ok)
	if !ok {
		return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, raw)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed.Data, nil
}

func (c *simClient) registerAndLogin(address string) (string, error) {
	if _, err := c.post("register", "/api/v1/auth/register", "", map[string]string{
		"address": address,
		"name":    "sim-" + address[len(address)-4:],
	}); err != nil {
		return "", err
	}

	data, err := c.post("token", "/api/v1/auth/token", "", map[string]string{"address": address})
	if err != nil {
		return "", err
	}
	var tokenResp struct {
		Token string `json:"jwt_token"`
	}
	if err := json.Unmarshal(data, &tokenResp); err != nil {
		return "", err
	}
	return tokenResp.Token, nil
}

func (c *simClient) placeOrder(token string) error {
	symbol := symbols[rand.Intn(len(symbols))]
	_, err := c.post("order", "/api/v1/orders", token, map[string]interface{}{
		"asset_symbol": symbol,
		"side":         sides[rand.Intn(len(sides))],
		"quantity":     float64(rand.Intn(20) + 1),
		"price":        10 + rand.Float64()*5,
		"mode":         modes[rand.Intn(len(modes))],
	})
	return err
}

func main() {
	client := newSimClient()

	// Register a small population of wallets and collect tokens.
	var tokens []string
	for i := 0; i < numWorkers; i++ {
		address := fmt.Sprintf("0x%040x", rand.Int63())
		token, err := client.registerAndLogin(address)
		if err != nil {
			log.Fatal().Err(err).Str("address", address).Msg("failed to register simulated user")
		}
		tokens = append(tokens, token)
	}

	orderCount := minOrders + rand.Intn(maxOrders-minOrders)
	log.Info().Int("orders", orderCount).Int("users", numWorkers).Msg("starting order flow simulation")

	var wg sync.WaitGroup
	work := make(chan int)
	for w := 0; w < numWorkers; w++ {
		token := tokens[w]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range work {
				if err := client.placeOrder(token); err != nil {
					log.Warn().Err(err).Msg("order placement failed")
				}
			}
		}()
	}
	for i := 0; i < orderCount; i++ {
		work <- i
	}
	close(work)
	wg.Wait()

	// Report per-route latency stats.
	for _, rs := range client.stats {
		min, max, mean, p95 := rs.calculate()
		log.Info().
			Str("route", rs.name).
			Int("calls", rs.totalCalls).
			Int("failures", rs.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("p95", p95).
			Msg("route statistics")
	}
}
