package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Window.MaxCartSize != 20 || cfg.Vocab.MinItemCount != 5 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Train.LearningRate != 0.001 {
		t.Errorf("train.learning_rate = %v, want 0.001", cfg.Train.LearningRate)
	}
}

func TestLoad_OverridesMergeWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
vocab:
  min_item_count: 3
window:
  max_cart_size: 10
train:
  epochs: 2
store:
  driver: redis
  redis:
    addr: redis:6379
    password: secret
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Vocab.MinItemCount != 3 || cfg.Window.MaxCartSize != 10 || cfg.Train.Epochs != 2 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Store.Driver != "redis" || cfg.Store.Redis.Addr != "redis:6379" || cfg.Store.Redis.Password != "secret" {
		t.Errorf("store override not applied: %+v", cfg.Store)
	}
	// 未覆盖的字段保持默认
	if cfg.Window.MinCartSize != 2 || cfg.Train.BatchSize != 256 {
		t.Errorf("defaults lost on merge: %+v", cfg)
	}
}

// 默认配置下，训练落盘路径与推理加载路径必须是同一个文件：
// train.checkpoint_path 留空时训练入口回退到 artifacts.checkpoint。
func TestDefault_CheckpointPathsAligned(t *testing.T) {
	cfg := Default()
	effective := cfg.Train.CheckpointPath
	if effective == "" {
		effective = cfg.Artifacts.Checkpoint
	}
	if effective != cfg.Artifacts.Checkpoint {
		t.Errorf("train writes %q but serve reads %q", effective, cfg.Artifacts.Checkpoint)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("window:\n  sample_frac: 2.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("sample_frac > 1 must be rejected")
	}
}
