// Package main provides a load testing tool for the QR render service.
// It posts render requests across output formats at a fixed rate and
// reports latency percentiles overall and per format.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// Config holds the load test configuration
type Config struct {
	Target       string        // Render service URL
	Duration     time.Duration // Test duration
	RPS          int           // Target requests per second
	Workers      int           // Number of concurrent workers
	Formats      []string      // Output formats to cycle through
	Base64Rate   float64       // Share of requests asking for base64 JSON
	Timeout      time.Duration // Per-request timeout
	ReadyTimeout time.Duration // Wait for GET /ready before starting; zero skips it
	Output       string        // Output format (json/text)
}

func main() {
	cfg := parseFlags(os.Args[1:])

	fmt.Println("QR RENDER LOAD TEST")
	fmt.Printf("  Target       : %s\n", cfg.Target)
	fmt.Printf("  Duration     : %s\n", cfg.Duration)
	fmt.Printf("  Target RPS   : %d\n", cfg.RPS)
	fmt.Printf("  Workers      : %d\n", cfg.Workers)
	fmt.Printf("  Formats      : %s\n", strings.Join(cfg.Formats, ","))
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := NewClient(cfg.Target, cfg.Timeout)
	results, err := NewRunner(cfg, client, os.Stdout).Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load test aborted: %v\n", err)
		os.Exit(1)
	}

	if cfg.Output == "json" {
		printJSONResults(results)
	} else {
		printTextResults(results)
	}
}

func parseFlags(args []string) Config {
	cfg := Config{}
	var formats string

	fs := flag.NewFlagSet("loadtest", flag.ExitOnError)
	fs.StringVar(&cfg.Target, "target", "http://localhost:3001", "Render service URL")
	fs.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration (e.g., 60s, 5m)")
	fs.IntVar(&cfg.RPS, "rps", 50, "Target requests per second")
	fs.IntVar(&cfg.Workers, "workers", 10, "Number of concurrent workers")
	fs.StringVar(&formats, "formats", "png,svg,jpg,pdf", "Comma separated output formats")
	fs.Float64Var(&cfg.Base64Rate, "base64-rate", 0.5, "Share of requests asking for base64 JSON (0-1)")
	fs.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "Per-request timeout")
	fs.DurationVar(&cfg.ReadyTimeout, "ready-timeout", 30*time.Second, "How long to wait for /ready before starting (0 to skip)")
	fs.StringVar(&cfg.Output, "output", "text", "Output format (json/text)")
	_ = fs.Parse(args)

	if cfg.RPS < 1 {
		cfg.RPS = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ReadyTimeout < 0 {
		cfg.ReadyTimeout = 0
	}
	cfg.Base64Rate = min(max(cfg.Base64Rate, 0), 1)
	cfg.Formats = splitFormats(formats)

	return cfg
}

func splitFormats(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		out = []string{"png"}
	}
	return out
}

func printTextResults(results *Results) {
	total := float64(max(results.TotalRequests, 1))

	fmt.Println()
	fmt.Println("LOAD TEST RESULTS")
	fmt.Printf("  Duration        : %.1fs\n", results.Duration.Seconds())
	fmt.Printf("  Target RPS      : %d\n", results.TargetRPS)
	fmt.Printf("  Achieved RPS    : %.1f\n", results.AchievedRPS)
	fmt.Printf("  Total Requests  : %s\n", formatNumber(results.TotalRequests))
	fmt.Printf("  Bytes Received  : %s\n", formatNumber(results.BytesReceived))
	fmt.Println("  LATENCY (ms)")
	fmt.Printf("    P50           : %.1f\n", results.LatencyP50)
	fmt.Printf("    P90           : %.1f\n", results.LatencyP90)
	fmt.Printf("    P95           : %.1f\n", results.LatencyP95)
	fmt.Printf("    P99           : %.1f\n", results.LatencyP99)
	fmt.Printf("    Max           : %.1f\n", results.LatencyMax)
	fmt.Println("  SUCCESS/ERROR")
	fmt.Printf("    Success       : %s (%.1f%%)\n", formatNumber(results.SuccessCount), float64(results.SuccessCount)/total*100)
	fmt.Printf("    Timeout       : %s (%.1f%%)\n", formatNumber(results.TimeoutCount), float64(results.TimeoutCount)/total*100)
	fmt.Printf("    Error         : %s (%.1f%%)\n", formatNumber(results.ErrorCount), float64(results.ErrorCount)/total*100)
	fmt.Printf("    Dropped       : %s\n", formatNumber(results.Dropped))

	if len(results.FormatResults) > 1 {
		fmt.Println()
		fmt.Println("Per-Format Breakdown:")
		fmt.Println("  Format   Requests   Dropped   Success   P50 (ms)   P99 (ms)")
		for _, fr := range results.FormatResults {
			fmt.Printf("  %-8s %8d   %7d   %6.1f%%   %8.1f   %8.1f\n",
				fr.Format,
				fr.Requests,
				fr.Dropped,
				fr.SuccessRate*100,
				fr.LatencyP50,
				fr.LatencyP99)
		}
	}
}

func printJSONResults(results *Results) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling results: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func formatNumber(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
