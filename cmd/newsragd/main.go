// Command newsragd runs the news retrieval service: an HTTP search API over a
// Milvus-backed news index, plus ingestion and bootstrap subcommands.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/news2vector/newsrag/analyzer"
	"github.com/news2vector/newsrag/cache"
	"github.com/news2vector/newsrag/collector"
	"github.com/news2vector/newsrag/common/httpx"
	"github.com/news2vector/newsrag/common/logger"
	"github.com/news2vector/newsrag/config"
	"github.com/news2vector/newsrag/embedding"
	"github.com/news2vector/newsrag/ingest"
	"github.com/news2vector/newsrag/orchestrator"
	"github.com/news2vector/newsrag/post"
	"github.com/news2vector/newsrag/retriever"
	"github.com/news2vector/newsrag/server"
	"github.com/news2vector/newsrag/textsplitter"
	"github.com/news2vector/newsrag/vectordb"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "newsragd",
		Short: "Portfolio-aware news retrieval and ranking service",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// .env is optional; real deployments set the environment directly.
			_ = godotenv.Load()
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(serveCmd(), collectCmd(), initCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel)
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the search API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			embedder, err := embedding.NewProvider(&cfg.Embedding)
			if err != nil {
				return err
			}
			store, err := vectordb.NewMilvus(ctx, &cfg.VectorDB, cfg.Embedding.Dimensions)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureCollection(ctx); err != nil {
				return err
			}

			vec := retriever.NewVector(embedder, store)
			hyb := retriever.NewHybrid(vec, &cfg.Search)
			reranker := post.NewModelReranker(&cfg.Rerank, httpx.NewFromConfig(cfg.HTTP))
			an := analyzer.New(&cfg.Analyzer)

			var c cache.Cache
			if cfg.Cache.Enable {
				c = cache.NewLRU(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
			}
			orch, err := orchestrator.New(cfg, vec, hyb, reranker, an, c)
			if err != nil {
				return err
			}
			defer orch.Close()

			srv := &http.Server{
				Addr:              cfg.Server.BindAddr,
				Handler:           server.New(orch).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("serving search API on %s", cfg.Server.BindAddr)
				errCh <- srv.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-stop:
				logger.Infof("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}

func collectCmd() *cobra.Command {
	var keywords []string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect news and index new articles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			embedder, err := embedding.NewProvider(&cfg.Embedding)
			if err != nil {
				return err
			}
			store, err := vectordb.NewMilvus(ctx, &cfg.VectorDB, cfg.Embedding.Dimensions)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureCollection(ctx); err != nil {
				return err
			}

			splitter, err := textsplitter.New(&cfg.Splitter)
			if err != nil {
				return err
			}
			src := collector.New(&cfg.Collector, httpx.NewFromConfig(cfg.HTTP))
			pipeline := ingest.New(src, store, embedder, splitter, cfg.Embedding.BatchSize, cfg.Analyzer.Parallelism)

			stats, err := pipeline.Run(ctx, keywords)
			if err != nil {
				return err
			}
			fmt.Printf("collected=%d already_stored=%d duplicates=%d chunks=%d inserted=%d\n",
				stats.Collected, stats.AlreadyStored, stats.Duplicates, stats.Chunks, stats.Inserted)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&keywords, "keyword", "k", nil, "search keywords (default: configured keywords)")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the news collection and index if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := vectordb.NewMilvus(ctx, &cfg.VectorDB, cfg.Embedding.Dimensions)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureCollection(ctx); err != nil {
				return err
			}

			count, err := store.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("collection %s ready, %d rows\n", cfg.VectorDB.Collection, count)
			return nil
		},
	}
}
