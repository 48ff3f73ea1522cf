// serve 启动在线推理服务。
// 词表或 checkpoint 加载失败时服务仍会启动（/health 报告 degraded、/predict 返回 503），
// 便于探针先就位、工件后到位的部署方式。
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rushteam/nextcart/catalog"
	"github.com/rushteam/nextcart/config"
	"github.com/rushteam/nextcart/core"
	"github.com/rushteam/nextcart/dataset"
	"github.com/rushteam/nextcart/model"
	"github.com/rushteam/nextcart/rules"
	"github.com/rushteam/nextcart/serve"
	"github.com/rushteam/nextcart/store"
	"github.com/rushteam/nextcart/vocab"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件路径（为空则用默认值）")
	addr := flag.String("addr", "", "覆盖监听地址")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config failed", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Serve.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	v, m := loadArtifacts(cfg, logger)

	opts := []serve.Option{serve.WithLogger(logger)}
	if cfg.Serve.MaxCartSize > 0 {
		opts = append(opts, serve.WithMaxCartSize(cfg.Serve.MaxCartSize))
	}
	if cfg.Serve.Rule != "" {
		f, err := rules.NewFilter(cfg.Serve.Rule)
		if err != nil {
			return err
		}
		logger.Info("prediction rule enabled", "rule", cfg.Serve.Rule)
		opts = append(opts, serve.WithFilter(f))
	}
	svc := serve.NewInferenceService(v, m, opts...)

	cat, err := buildCatalog(ctx, cfg, v, logger)
	if err != nil {
		return err
	}

	server := serve.NewServer(svc, cat, logger)
	return server.Run(ctx, cfg.Serve.Addr)
}

// loadArtifacts 加载词表与 checkpoint；任一失败则服务以未就绪状态启动。
func loadArtifacts(cfg *config.Config, logger *slog.Logger) (*vocab.Vocabulary, *model.Predictor) {
	v, err := vocab.Load(cfg.Artifacts.Vocabulary)
	if err != nil {
		logger.Warn("vocabulary not loaded, serving degraded", "path", cfg.Artifacts.Vocabulary, "err", err)
		return nil, nil
	}
	ck, err := model.LoadCheckpoint(cfg.Artifacts.Checkpoint)
	if err != nil {
		logger.Warn("checkpoint not loaded, serving degraded", "path", cfg.Artifacts.Checkpoint, "err", err)
		return v, nil
	}
	if ck.VocabSize != v.Size {
		logger.Warn("checkpoint/vocabulary size mismatch, serving degraded",
			"checkpoint_vocab", ck.VocabSize, "vocabulary_size", v.Size)
		return v, nil
	}
	logger.Info("artifacts loaded",
		"vocabulary_size", v.Size,
		"embedding_dim", ck.EmbeddingDim,
		"hidden_dim", ck.HiddenDim,
		"val_loss", ck.ValLoss,
		"epoch", ck.Epoch,
	)
	return v, ck.Restore()
}

// buildCatalog 按配置选择存储后端。memory 后端每次启动时从词表元数据重新播种；
// redis 后端假定已被播种过（或由本次启动播种），可跨实例共享。
func buildCatalog(ctx context.Context, cfg *config.Config, v *vocab.Vocabulary, logger *slog.Logger) (*catalog.Catalog, error) {
	var kv core.KeyValueStore
	switch cfg.Store.Driver {
	case "redis":
		rs, err := store.NewRedisStore(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		if err != nil {
			return nil, err
		}
		kv = rs
		logger.Info("catalog backed by redis", "addr", cfg.Store.Redis.Addr)
	default:
		kv = store.NewMemoryStore()
	}
	cat := catalog.New(kv)

	if v == nil || len(v.Metadata) == 0 {
		return cat, nil
	}
	popularity, err := dataset.LoadPopularity(cfg.Artifacts.Popularity)
	if err != nil {
		logger.Warn("popularity not loaded, catalog ranking unavailable", "err", err)
		popularity = nil
	}
	if err := cat.Seed(ctx, v.Metadata, popularity); err != nil {
		return nil, err
	}
	logger.Info("catalog seeded", "products", len(v.Metadata), "ranked", len(popularity))
	return cat, nil
}
