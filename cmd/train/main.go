// train 读取预处理工件，训练模型并保存验证 loss 最优的 checkpoint。
package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rushteam/nextcart/config"
	"github.com/rushteam/nextcart/dataset"
	"github.com/rushteam/nextcart/train"
	"github.com/rushteam/nextcart/vocab"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件路径（为空则用默认值）")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config failed", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("training failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	v, err := vocab.Load(cfg.Artifacts.Vocabulary)
	if err != nil {
		return err
	}
	examples, maxCartSize, err := dataset.LoadExamples(cfg.Artifacts.Examples)
	if err != nil {
		return err
	}
	logger.Info("loaded artifacts",
		"vocabulary_size", v.Size,
		"examples", len(examples),
		"max_cart_size", maxCartSize,
	)

	trainSet, valSet := dataset.Split(examples, cfg.Window.ValFrac)
	logger.Info("split dataset", "train", len(trainSet), "val", len(valSet))

	trainCfg := cfg.Train
	if trainCfg.CheckpointPath == "" {
		trainCfg.CheckpointPath = cfg.Artifacts.Checkpoint
	}
	if err := os.MkdirAll(filepath.Dir(trainCfg.CheckpointPath), 0o755); err != nil {
		return err
	}

	t := train.New(v.Size, trainCfg, logger)
	best, err := t.Fit(trainSet, valSet)
	if err != nil {
		return err
	}
	logger.Info("training finished",
		"best_epoch", best.Epoch,
		"best_val_loss", best.ValLoss,
		"val_accuracy", best.ValAccuracy,
		"checkpoint", trainCfg.CheckpointPath,
	)
	return nil
}
