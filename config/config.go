// Package config 提供应用配置：YAML 文件 + 默认值。
// 三个二进制（preprocess/train/serve）共享同一份配置文件，各取所需段落，
// 保证训练与推理读到同一组工件路径与窗口参数。
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/nextcart/train"
)

// Data 是原始数据文件路径。
type Data struct {
	Transactions string `yaml:"transactions"` // 购买记录 CSV
	Products     string `yaml:"products"`     // 商品元数据 CSV（可选）
}

// Artifacts 是预处理/训练产出的工件路径。
// 训练与在线推理必须指向同一组工件，词表与 checkpoint 成对加载。
type Artifacts struct {
	Vocabulary string `yaml:"vocabulary"`
	Examples   string `yaml:"examples"`
	Popularity string `yaml:"popularity"`
	Checkpoint string `yaml:"checkpoint"`
}

// Vocab 是词表构建参数。
type Vocab struct {
	MinItemCount int `yaml:"min_item_count"`
}

// Window 是滑动窗口样本生成参数。
type Window struct {
	MinCartSize   int     `yaml:"min_cart_size"`
	MaxCartSize   int     `yaml:"max_cart_size"`
	SampleFrac    float64 `yaml:"sample_frac"`
	Seed          int64   `yaml:"seed"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	ValFrac       float64 `yaml:"val_frac"`
}

// Store 是目录存储配置。driver 取 memory 或 redis。
type Store struct {
	Driver string `yaml:"driver"`
	Redis  Redis  `yaml:"redis"`
}

// Redis 是 Redis 连接参数。
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Serve 是在线推理服务配置。Rule 为可选的 CEL 过滤表达式。
type Serve struct {
	Addr        string `yaml:"addr"`
	MaxCartSize int    `yaml:"max_cart_size"`
	Rule        string `yaml:"rule"`
}

// Config 是应用的完整配置。
type Config struct {
	Data      Data         `yaml:"data"`
	Artifacts Artifacts    `yaml:"artifacts"`
	Vocab     Vocab        `yaml:"vocab"`
	Window    Window       `yaml:"window"`
	Train     train.Config `yaml:"train"`
	Store     Store        `yaml:"store"`
	Serve     Serve        `yaml:"serve"`
}

// Default 返回全部默认值。
func Default() *Config {
	return &Config{
		Data: Data{
			Transactions: "data/transactions.csv",
			Products:     "data/products.csv",
		},
		Artifacts: Artifacts{
			Vocabulary: "artifacts/vocabulary.json",
			Examples:   "artifacts/examples.json",
			Popularity: "artifacts/popularity.json",
			Checkpoint: "artifacts/checkpoint.json",
		},
		Vocab: Vocab{MinItemCount: 5},
		Window: Window{
			MinCartSize: 2,
			MaxCartSize: 20,
			SampleFrac:  1.0,
			Seed:        42,
			ValFrac:     0.2,
		},
		Train: train.DefaultConfig(),
		Store: Store{
			Driver: "memory",
			Redis:  Redis{Addr: "127.0.0.1:6379"},
		},
		Serve: Serve{
			Addr:        ":8080",
			MaxCartSize: 20,
		},
	}
}

// Load 读取 YAML 配置文件并与默认值合并。path 为空时直接返回默认配置。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 做基本合法性检查。
func (c *Config) Validate() error {
	if c.Window.MaxCartSize < 1 {
		return fmt.Errorf("config: window.max_cart_size must be >= 1")
	}
	if c.Window.MinCartSize < 1 {
		return fmt.Errorf("config: window.min_cart_size must be >= 1")
	}
	if c.Window.SampleFrac <= 0 || c.Window.SampleFrac > 1 {
		return fmt.Errorf("config: window.sample_frac must be in (0, 1]")
	}
	if c.Window.ValFrac < 0 || c.Window.ValFrac >= 1 {
		return fmt.Errorf("config: window.val_frac must be in [0, 1)")
	}
	if c.Train.BatchSize < 1 || c.Train.Epochs < 1 {
		return fmt.Errorf("config: train.batch_size and train.epochs must be >= 1")
	}
	switch c.Store.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}
