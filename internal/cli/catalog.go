package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/config"
	"github.com/dwizi/region-relay/internal/store"
)

func newCatalogCommand(logger *slog.Logger) *cobra.Command {
	var dbPath string
	command := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the region and tag catalog",
	}
	command.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite path (defaults to REGION_RELAY_DB_PATH)")

	command.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Replace the stored catalog with a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := catalog.ReadFile(args[0])
			if err != nil {
				return err
			}
			sqlStore, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer sqlStore.Close()
			if err := sqlStore.ReplaceCatalog(cmd.Context(), file); err != nil {
				return err
			}
			logger.Info("catalog imported", "path", args[0], "regions", len(file.Regions), "tags", len(file.Tags))
			cmd.Printf("imported %d regions and %d tags\n", len(file.Regions), len(file.Tags))
			return nil
		},
	})

	command.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored catalog as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlStore, err := openStore(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer sqlStore.Close()
			file, err := sqlStore.LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			encoded, err := yaml.Marshal(file)
			if err != nil {
				return fmt.Errorf("encode catalog: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(encoded)
			return err
		},
	})
	return command
}

func openStore(ctx context.Context, dbPath string) (*store.Store, error) {
	if dbPath == "" {
		dbPath = config.FromEnv().DBPath
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	sqlStore, err := store.New(dbPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(ctx); err != nil {
		sqlStore.Close()
		return nil, err
	}
	return sqlStore, nil
}
