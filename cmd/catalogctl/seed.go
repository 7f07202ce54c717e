package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"medimate-go/internal/bootstrap"
	"medimate-go/internal/service"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import a medicines JSON file into the catalog store",
	Long: `Reads a JSON array of medicine records and upserts each record into the
configured catalog store (MongoDB or MySQL), keyed by _id.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "medicines JSON file (defaults to catalog.file)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	path := seedFile
	if path == "" {
		path = cfg.Catalog.File
	}

	records, err := service.LoadCatalog(ctx, service.NewFileCatalogSource(path))
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	repo, closeStore, err := bootstrap.OpenMedicineRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := service.SeedCatalog(ctx, repo, records)
	if err != nil {
		return err
	}
	cmd.Printf("Imported %d medicine records from %s.\n", n, path)
	return nil
}
