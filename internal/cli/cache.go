package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/canopyscan/canopy/pkg/config"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package metadata cache",
	}
	cmd.AddCommand(newCachePathCmd(), newCacheClearCmd())
	return cmd
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the metadata cache directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := metadataCacheDir()
			if err != nil {
				return err
			}
			fmt.Println(dir)
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached package metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := metadataCacheDir()
			if err != nil {
				return err
			}
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			printSuccess("Cleared cache at %s", dir)
			return nil
		},
	}
}

func metadataCacheDir() (string, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return "", err
	}
	if cfg.CacheDir != "" {
		return cfg.CacheDir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "canopy"), nil
}
