// preprocess 把原始订单 CSV 加工成训练工件：
// 词表（含商品元数据）、滑动窗口样本、热度分。
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rushteam/nextcart/config"
	"github.com/rushteam/nextcart/dataset"
	"github.com/rushteam/nextcart/vocab"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件路径（为空则用默认值）")
	transactions := flag.String("transactions", "", "覆盖订单明细 CSV 路径")
	products := flag.String("products", "", "覆盖商品元数据 CSV 路径")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config failed", "err", err)
		os.Exit(1)
	}
	if *transactions != "" {
		cfg.Data.Transactions = *transactions
	}
	if *products != "" {
		cfg.Data.Products = *products
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("preprocess failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	records, err := dataset.LoadTransactions(cfg.Data.Transactions)
	if err != nil {
		return err
	}
	logger.Info("loaded transactions", "path", cfg.Data.Transactions, "rows", len(records))

	builder := vocab.NewBuilder(cfg.Vocab.MinItemCount)
	builder.Add(records...)
	v, err := builder.Build()
	if err != nil {
		return err
	}
	logger.Info("built vocabulary", "size", v.Size, "min_item_count", cfg.Vocab.MinItemCount)

	if cfg.Data.Products != "" {
		meta, err := dataset.LoadProducts(cfg.Data.Products)
		if err != nil {
			logger.Warn("load products failed, vocabulary carries no metadata", "err", err)
		} else {
			v.WithMetadata(meta)
			logger.Info("attached product metadata", "products", len(v.Metadata))
		}
	}

	w := dataset.NewWindower(v)
	w.MinCartSize = cfg.Window.MinCartSize
	w.MaxCartSize = cfg.Window.MaxCartSize
	w.SampleFrac = cfg.Window.SampleFrac
	w.Seed = cfg.Window.Seed
	w.MaxConcurrent = cfg.Window.MaxConcurrent

	examples, err := w.Examples(context.Background(), records)
	if err != nil {
		return err
	}
	logger.Info("generated examples", "count", len(examples), "max_cart_size", w.MaxCartSize)

	// 热度分换算回外部商品 ID 后落盘
	popularity := make(map[int64]float64)
	for idx, score := range dataset.ComputePopularity(examples) {
		if id, ok := v.ItemAt(idx); ok {
			popularity[id] = score
		}
	}

	for _, dir := range []string{
		filepath.Dir(cfg.Artifacts.Vocabulary),
		filepath.Dir(cfg.Artifacts.Examples),
		filepath.Dir(cfg.Artifacts.Popularity),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := v.Save(cfg.Artifacts.Vocabulary); err != nil {
		return err
	}
	if err := dataset.SaveExamples(cfg.Artifacts.Examples, examples, w.MaxCartSize); err != nil {
		return err
	}
	if err := dataset.SavePopularity(cfg.Artifacts.Popularity, popularity); err != nil {
		return err
	}
	logger.Info("artifacts written",
		"vocabulary", cfg.Artifacts.Vocabulary,
		"examples", cfg.Artifacts.Examples,
		"popularity", cfg.Artifacts.Popularity,
	)
	return nil
}
