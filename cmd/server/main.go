package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"fragcoach/internal/api"
	"fragcoach/internal/coach"
	"fragcoach/internal/config"
	"fragcoach/internal/db"
	"fragcoach/internal/memory"
	"fragcoach/internal/output"
	redisdb "fragcoach/internal/redis"
	"fragcoach/internal/tools"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := db.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	rdb := redisdb.NewClient(cfg)

	// Vector memory is optional: without Qdrant the coach still runs with
	// relational recall only.
	var vectors *memory.VectorStore
	var embedder *memory.Embedder
	if cfg.Qdrant.URL != "" {
		vectors, err = memory.NewVectorStore(cfg.Qdrant.URL, cfg.Qdrant.Collection, cfg.Qdrant.APIKey)
		if err != nil {
			log.Printf("[Main] WARNING: vector store unavailable: %v", err)
			vectors = nil
		} else {
			embedder = memory.NewEmbedder(cfg.EmbeddingModel.URL, cfg.EmbeddingModel.Name)
			log.Printf("[Main] Vector memory connected (collection %s)", cfg.Qdrant.Collection)
		}
	}
	mem := memory.NewService(db.DB, vectors, embedder, rdb)

	registry := tools.NewRegistry()
	mustRegister(registry, tools.NewPositioningTool())
	mustRegister(registry, tools.NewEconomyTool())
	if cfg.AdviceLLM.URL != "" {
		mustRegister(registry, tools.NewAdviceLLMTool(cfg.AdviceLLM.URL, cfg.AdviceLLM.Name))
	}
	if cfg.Tracker.BaseURL != "" {
		mustRegister(registry, tools.NewTrackerStatsTool(cfg.Tracker.BaseURL))
	}
	if cfg.TTS.URL != "" {
		mustRegister(registry, tools.NewTTSQueueTool(cfg.TTS.URL))
	}
	log.Printf("[Main] Registered %d tools", len(registry.List()))

	dispatcher := output.NewDispatcher(output.LogDeliverer{})
	orch := coach.New(cfg, registry, dispatcher, mem, mem)
	if err := orch.Initialize(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Orchestrator init error: %v\n", err)
		os.Exit(1)
	}
	if err := orch.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Orchestrator start error: %v\n", err)
		os.Exit(1)
	}
	defer orch.Dispose()

	r := api.SetupRouter(cfg, rdb, orch, registry)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Starting server on %s\n", addr)
	if err := r.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func mustRegister(registry *tools.Registry, tool tools.Tool) {
	if err := registry.Register(tool); err != nil {
		fmt.Fprintf(os.Stderr, "Tool registration error: %v\n", err)
		os.Exit(1)
	}
}
