package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"PcapLens/internal/config"
	"PcapLens/internal/query"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via the report API, 'direct' to query ClickHouse directly.")
	apiAddr := flag.String("api", "http://localhost:8080", "Base URL of the report API.")
	capture := flag.String("capture", "", "Capture name to query (lists reports or captures when empty).")
	kind := flag.String("kind", "", "Error kind filter, e.g. tcp_resets (optional).")
	src := flag.String("src", "", "Source address prefix filter (optional).")
	limit := flag.Int("limit", 20, "Maximum number of events to return.")
	configPath := flag.String("config", "", "Config file holding the clickhouse writer settings (direct mode).")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch *mode {
	case "api":
		queryViaAPI(ctx, *apiAddr, *capture, *kind, *src, *limit)
	case "direct":
		directQueryClickHouse(ctx, *configPath, query.ErrorQuery{
			Capture: *capture,
			Kind:    *kind,
			Src:     *src,
			Limit:   *limit,
		})
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(ctx context.Context, base, capture, kind, src string, limit int) {
	var apiURL string
	if capture == "" {
		apiURL = base + "/api/v1/reports"
	} else {
		params := url.Values{}
		params.Set("limit", fmt.Sprint(limit))
		if kind != "" {
			params.Set("kind", kind)
		}
		if src != "" {
			params.Set("src", src)
		}
		apiURL = fmt.Sprintf("%s/api/v1/captures/%s/events?%s", base, url.PathEscape(capture), params.Encode())
	}

	log.Printf("Sending request to %s", apiURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		log.Fatalf("Error building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}

	log.Println("---")
	fmt.Println(prettyJSON.String())
}

func directQueryClickHouse(ctx context.Context, configPath string, eq query.ErrorQuery) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	chCfg := config.ClickHouseConfig{Host: "localhost", Port: 9000, Database: "default", Username: "default"}
	for _, w := range cfg.Analyzer.Writers {
		if w.Type == "clickhouse" {
			chCfg = w.ClickHouse
			break
		}
	}

	q, err := query.NewClickHouseQuerier(ctx, chCfg)
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	log.Println("Successfully connected to ClickHouse.")

	if eq.Capture == "" {
		captures, err := q.Captures(ctx)
		if err != nil {
			log.Fatalf("Error listing captures: %v", err)
		}
		log.Println("--- Stored Captures ---")
		for _, c := range captures {
			fmt.Println(c)
		}
		return
	}

	counts, err := q.ErrorCounts(ctx, eq.Capture)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}

	log.Println("--- Error Counts (Direct) ---")
	if len(counts) == 0 {
		log.Println("No data found for the specified capture.")
		return
	}
	for _, c := range counts {
		fmt.Printf("  %-22s %d\n", c.Kind, c.Count)
	}

	events, err := q.ErrorEvents(ctx, eq)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	fmt.Println("---------------------")
	for _, ev := range events {
		fmt.Printf("#%-8d %s %-22s %s -> %s  %s\n",
			ev.PacketNum, ev.Timestamp.Format(time.RFC3339Nano), ev.Kind, ev.Src, ev.Dst, ev.Detail)
	}
}
