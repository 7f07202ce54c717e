package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"medimate-go/internal/bootstrap"
	"medimate-go/internal/service"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the catalog index into the configured backend",
	Long: `Loads the catalog from catalog.source, embeds every record and writes the
entries to catalog.index_backend. When catalog.cache_dir is set the embedding
cache is warmed as a side effect.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	if cfg.Catalog.IndexBackend == "" || cfg.Catalog.IndexBackend == "memory" {
		cmd.Println("catalog.index_backend is memory; the index will only live for this run.")
	}

	embedders, closeCache, err := bootstrap.NewEmbedders(cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	repo, closeStore, err := bootstrap.OpenMedicineRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	store, err := bootstrap.OpenIndexStore(ctx, cfg)
	if err != nil {
		return err
	}

	records, err := service.LoadCatalog(ctx, bootstrap.CatalogSource(cfg, bootstrap.OpenObjectStore(ctx, cfg), repo))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("read catalog: %w", err)
	}

	index, err := service.BuildCatalogIndex(ctx, embedders.Query, store, records, bootstrap.BuildOptions(cfg, embedders.Build))
	if err != nil {
		_ = store.Close()
		return err
	}
	defer index.Close()

	cmd.Printf("Indexed %d catalog entries into %s.\n", index.Len(), backendName(cfg.Catalog.IndexBackend))
	return nil
}

func backendName(backend string) string {
	if backend == "" {
		return "memory"
	}
	return backend
}
