package cmd

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mercadoclaw/internal/catalog"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the local product index",
	}
	cmd.AddCommand(catalogImportCmd())
	cmd.AddCommand(catalogCountCmd())
	cmd.AddCommand(catalogEmbedCmd())
	return cmd
}

func catalogImportCmd() *cobra.Command {
	var delimiter string
	var skipHeader bool
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Upsert products (ean;nome) into the configured index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stores, _, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()
			if stores.Products == nil {
				return errors.New("no product index configured (set MERCADO_POSTGRES_DSN or catalog.sqlite_path)")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			products, err := readProductsCSV(f, delimiter, skipHeader)
			if err != nil {
				return err
			}

			n, err := stores.Products.Import(context.Background(), products)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			total, _ := stores.Products.Count(context.Background())
			slog.Info("catalog.import.done", "store", stores.Products.Name(), "rows", len(products), "upserted", n, "total", total)
			fmt.Printf("imported %d products into %s (%d total)\n", n, stores.Products.Name(), total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&delimiter, "delimiter", "d", "", "field delimiter (default: detect ';' or ',')")
	cmd.Flags().BoolVar(&skipHeader, "header", false, "skip the first row")
	return cmd
}

func catalogCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of indexed products",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			stores, _, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()
			if stores.Products == nil {
				return errors.New("no product index configured")
			}
			n, err := stores.Products.Count(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d products\n", stores.Products.Name(), n)
			return nil
		},
	}
}

func catalogEmbedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "embed",
		Short: "Compute missing product embeddings for semantic search",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.HasSemantic() {
				return errors.New("semantic search is off (set MERCADO_POSTGRES_DSN, MERCADO_OPENAI_API_KEY and catalog.semantic.enabled)")
			}
			stores, _, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			sem, err := newSemanticSource(cfg, stores)
			if err != nil {
				return err
			}
			n, err := sem.EmbedPending(cmd.Context())
			if err != nil {
				return fmt.Errorf("embed: %w", err)
			}
			slog.Info("catalog.embed.done", "embedded", n)
			fmt.Printf("embedded %d products\n", n)
			return nil
		},
	}
}

// readProductsCSV parses "ean;nome" rows. Rows without a numeric identifier
// or a name are skipped. An empty delimiter is detected from the first line.
func readProductsCSV(r io.Reader, delimiter string, skipHeader bool) ([]catalog.Candidate, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.TrimPrefix(string(data), "\ufeff")

	comma := ';'
	switch {
	case delimiter != "":
		comma = []rune(delimiter)[0]
	default:
		first, _, _ := strings.Cut(text, "\n")
		if !strings.Contains(first, ";") && strings.Contains(first, ",") {
			comma = ','
		}
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var out []catalog.Candidate
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		line++
		if line == 1 && skipHeader {
			continue
		}
		if len(rec) < 2 {
			continue
		}
		id := catalog.DigitsOnly(rec[0])
		name := strings.TrimSpace(rec[1])
		if id == "" || name == "" {
			continue
		}
		out = append(out, catalog.Candidate{Identifier: id, DisplayName: name})
	}
	return out, nil
}
