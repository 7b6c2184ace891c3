package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pipmirror/pipmirror/pkg/stage"
)

// cacheCommand creates the command for managing the fetch-tool download
// cache. The cache lives under the download directory and persists across
// runs; clearing it forces the next fetch to download everything again.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the fetch-tool download cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var downloadDir string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the download cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := stage.Derive(downloadDir).Cache

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			count := 0
			err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return nil // Skip errors, continue walking
				}
				if path == dir {
					return nil
				}
				if !info.IsDir() {
					if err := os.Remove(path); err == nil {
						count++
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			// Clean up empty subdirectories
			_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil || path == dir {
					return nil
				}
				if info.IsDir() {
					os.Remove(path)
				}
				return nil
			})

			printSuccess("Cleared %d cached entries", count)
			printDetail("Directory: %s", dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&downloadDir, "dir", "d", "", "download directory (required)")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	var downloadDir string

	cmd := &cobra.Command{
		Use:   "path",
		Short: "Print the download cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), stage.Derive(downloadDir).Cache)
			return nil
		},
	}

	cmd.Flags().StringVarP(&downloadDir, "dir", "d", "", "download directory (required)")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}
