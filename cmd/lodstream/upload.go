package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hupe1980/lodstream"
	"github.com/hupe1980/lodstream/blobstore"
	"github.com/hupe1980/lodstream/bvh"
	"github.com/hupe1980/lodstream/catalog/dynamodb"
	"github.com/hupe1980/lodstream/config"
	"github.com/hupe1980/lodstream/registry"
)

func uploadCmd() *cobra.Command {
	var (
		cfgPath  string
		dir      string
		register bool
	)

	cmd := &cobra.Command{
		Use:   "upload <tree.bvh>...",
		Short: "Copy datasets to the configured store",
		Long: `Copy tree files and their payloads to the store named by the configuration.

With --register the uploaded models are written to the DynamoDB catalog
named in the configuration, in argument order.

Examples:
  LODSTREAM_STORE_KIND=s3 LODSTREAM_STORE_BUCKET=scans lodstream upload bunny.bvh
  lodstream upload -c prod.yaml --dir city --register *.bvh`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			return runUpload(cmd.Context(), cfg, args, dir, register, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "configuration file")
	cmd.Flags().StringVar(&dir, "dir", "", "destination directory inside the store")
	cmd.Flags().BoolVar(&register, "register", false, "write the models to the DynamoDB catalog")

	return cmd
}

func runUpload(ctx context.Context, cfg *config.Config, files []string, dir string, register bool, w io.Writer) error {
	if register && cfg.Catalog.Kind != "dynamodb" {
		return fmt.Errorf("--register needs catalog.kind dynamodb, have %q", cfg.Catalog.Kind)
	}

	store, closer, err := lodstream.NewStore(ctx, cfg.Store, config.CacheConfig{})
	if err != nil {
		return err
	}

	if closer != nil {
		defer closer.Close()
	}

	entries := make([]registry.Entry, 0, len(files))

	for _, f := range files {
		// Validate before copying anything.
		if _, err := bvh.ReadFile(f); err != nil {
			return err
		}

		name := path.Join(dir, filepath.Base(f))

		for _, pair := range [][2]string{{f, name}, {bvh.PayloadName(f), bvh.PayloadName(name)}} {
			src, dst := pair[0], pair[1]

			n, err := copyFile(ctx, store, src, dst)
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "%s -> %s (%s)\n", src, dst, humanize.IBytes(uint64(n)))
		}

		entries = append(entries, registry.Entry{Path: name, Key: name})
	}

	if !register {
		return nil
	}

	cat, err := dynamodb.Dial(ctx, cfg.Catalog.Table, cfg.Catalog.Session)
	if err != nil {
		return err
	}

	if err := cat.Put(ctx, entries); err != nil {
		return err
	}

	fmt.Fprintf(w, "registered %d models in %s/%s\n", len(entries), cfg.Catalog.Table, cfg.Catalog.Session)

	return nil
}

func copyFile(ctx context.Context, store blobstore.BlobStore, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := store.Create(ctx, dst)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("upload %s: %w", dst, err)
	}

	if err := out.Close(); err != nil {
		return n, fmt.Errorf("upload %s: %w", dst, err)
	}

	return n, nil
}
