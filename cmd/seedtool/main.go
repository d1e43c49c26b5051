// seedtool bulk-loads crawl seeds into the Cache Store from a file of
// newline-delimited "url[,depth]" lines, for operators priming a fresh
// install without clicking through the admin dashboard one URL at a
// time. Not part of spec.md's §4 operations; a supplemented feature
// (see SPEC_FULL.md §10).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/model"
	"github.com/zkmkarlsruhe/wayback-cache-proxy/internal/store"
)

func main() {
	redisURL := flag.String("redis", "redis://localhost:6379/0", "redis connection URL")
	path := flag.String("file", "", "path to a seed list file (one url[,depth] per line); defaults to stdin")
	defaultDepth := flag.Int("default-depth", 1, "depth to use for lines that omit one")
	flag.Parse()

	var in *os.File
	if *path == "" {
		in = os.Stdin
	} else {
		f, err := os.Open(*path)
		if err != nil {
			log.Fatalf("seedtool: %v", err)
		}
		defer f.Close()
		in = f
	}

	seeds, err := parseSeeds(in, *defaultDepth)
	if err != nil {
		log.Fatalf("seedtool: %v", err)
	}
	if len(seeds) == 0 {
		log.Print("seedtool: no seeds found, nothing to do")
		return
	}

	opts, err := redis.ParseURL(*redisURL)
	if err != nil {
		log.Fatalf("seedtool: invalid -redis URL: %v", err)
	}
	st := store.NewRedisStore(redis.NewClient(opts))

	ctx := context.Background()
	loaded := 0
	for _, seed := range seeds {
		if err := st.PutSeed(ctx, seed); err != nil {
			log.Printf("seedtool: skip %q: %v", seed.URL, err)
			continue
		}
		loaded++
	}
	log.Printf("seedtool: loaded %d/%d seeds", loaded, len(seeds))
}

// parseSeeds reads "url[,depth]" lines, skipping blanks and lines
// starting with "#".
func parseSeeds(r *os.File, defaultDepth int) ([]model.CrawlSeed, error) {
	var seeds []model.CrawlSeed
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ",", 2)
		seed := model.CrawlSeed{URL: strings.TrimSpace(parts[0]), Depth: defaultDepth}
		if len(parts) == 2 {
			depth, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid depth %q", lineNo, parts[1])
			}
			seed.Depth = depth
		}
		seeds = append(seeds, seed)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return seeds, nil
}
