package main

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/centinela-labs/centinela/internal/fetch"
	"github.com/centinela-labs/centinela/internal/geo"
	"github.com/centinela-labs/centinela/internal/llm"
	"github.com/centinela-labs/centinela/internal/pipeline"
	"github.com/centinela-labs/centinela/internal/store"
	anthropicpkg "github.com/centinela-labs/centinela/pkg/anthropic"
	"github.com/centinela-labs/centinela/pkg/opencage"
	"github.com/centinela-labs/centinela/pkg/tavily"
)

// initPipeline validates credentials, opens the store, and wires every
// pipeline component from config.
func initPipeline() (*pipeline.Pipeline, *store.FileStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	asker := llm.New(anthropicClient, cfg.Anthropic.Model, int64(cfg.Anthropic.MaxTokens))

	tavilyClient := tavily.NewClient(cfg.Tavily.Key, tavily.WithBaseURL(cfg.Tavily.BaseURL))
	searcher := fetch.NewSearcher(tavilyClient, cfg.Tavily.MaxResults, cfg.Tavily.Retries, cfg.Tavily.SearchDepth)
	fetcher := fetch.NewFetcher(time.Duration(cfg.Fetch.TimeoutSecs) * time.Second)

	opencageClient := opencage.NewClient(cfg.OpenCage.Key,
		opencage.WithBaseURL(cfg.OpenCage.BaseURL),
		opencage.WithRateLimit(cfg.OpenCage.RateRPS),
		opencage.WithLanguage(cfg.OpenCage.Language),
	)
	geocoder := geo.NewAdapter(opencageClient, cfg.Geo.City, cfg.Geo.Country)

	roads, err := pipeline.LoadRoads()
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(
		pipeline.NewCollector(searcher, fetcher, asker, geocoder, cfg.Pipeline.SearchQuery, cfg.Fetch.MinContentChars),
		pipeline.NewSelector(asker, geocoder),
		pipeline.NewRefiner(asker, geocoder, roads),
		pipeline.NewReporter(asker),
		st,
	)
	return p, st, nil
}
