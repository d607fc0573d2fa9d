package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/rushteam/hybridrec/core"
)

// Files 是 JSON-lines 输入文件路径；Scores 与 Categories 可为空。
type Files struct {
	Logs       string `koanf:"logs"`
	Scores     string `koanf:"scores"`
	Products   string `koanf:"products"`
	Categories string `koanf:"categories"`
}

func readFile[T any](ctx context.Context, path string, read func(context.Context, *os.File) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	v, err := read(ctx, f)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}

// LoadFiles 读取全部文件并合并为交互与目录。
func LoadFiles(ctx context.Context, files Files, beta float64) (*Dataset, error) {
	logs, err := readFile(ctx, files.Logs, func(ctx context.Context, f *os.File) ([]LogRecord, error) {
		return ReadLogs(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	var scores []ScoreRecord
	if files.Scores != "" {
		scores, err = readFile(ctx, files.Scores, func(ctx context.Context, f *os.File) ([]ScoreRecord, error) {
			return ReadScores(ctx, f)
		})
		if err != nil {
			return nil, err
		}
	}

	products, err := readFile(ctx, files.Products, func(ctx context.Context, f *os.File) ([]core.Product, error) {
		return ReadProducts(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	tree := core.NewCategoryTree()
	if files.Categories != "" {
		tree, err = readFile(ctx, files.Categories, func(ctx context.Context, f *os.File) (*core.CategoryTree, error) {
			return ReadCategories(ctx, f)
		})
		if err != nil {
			return nil, err
		}
	}

	return &Dataset{
		Interactions: Merge(logs, scores, beta),
		Catalog:      core.NewCatalog(products, tree),
		Collab:       CollabTable(scores),
	}, nil
}
