// cmd/backtest replays recorded observations from SQLite through a fresh ROC
// engine and prints a per-indicator summary.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/observations.db --indicators=ROC:10,ROCR:5 --speed=0
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rocengine/internal/feed/replay"
	"rocengine/internal/indicator"
	"rocengine/internal/model"
	sqlitestore "rocengine/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	dbPath := flag.String("db", "data/observations.db", "Path to SQLite database")
	indicatorCfg := flag.String("indicators", "", "Indicator specs: TYPE:PERIOD,... (default: "+indicator.DefaultSpecs+")")
	keys := flag.String("keys", "", "Comma-separated exchange:token keys to replay (empty=all)")
	sample := flag.Int("sample", 10, "Print the first N ready results")
	flag.Parse()

	configs, err := indicator.ParseSpecs(*indicatorCfg)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	engine, err := indicator.NewEngine(configs)
	if err != nil {
		log.Fatalf("[backtest] engine init failed: %v", err)
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := replay.Options{Speed: *speed, Keys: splitKeys(*keys)}
	if *fromTS > 0 {
		opts.From = time.Unix(*fromTS, 0)
	}

	obsCh := make(chan model.Observation, 10000)
	go func() {
		defer close(obsCh)
		if _, err := replay.New(reader).Run(ctx, opts, obsCh); err != nil && ctx.Err() == nil {
			log.Printf("[backtest] replay error: %v", err)
		}
	}()

	summary := NewSummary(configs)
	started := time.Now()
	printed := 0
	for obs := range obsCh {
		for _, r := range engine.Process(obs) {
			summary.Add(r)
			if r.Ready && printed < *sample {
				printed++
				fmt.Printf("  [%s] %s %s:%s = %.4f\n",
					r.TS.Format("15:04:05"), r.Name, r.Exchange, r.Token, r.Value)
			}
		}
		summary.Observations++
	}

	fmt.Println()
	summary.Write(os.Stdout, time.Since(started))
}

func splitKeys(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
