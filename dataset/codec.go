package dataset

import (
	"encoding/json"
	"fmt"
	"os"
)

// exampleDump 是样本工件的落盘格式。
type exampleDump struct {
	Cart  []int `json:"cart"`
	Label int   `json:"label"`
}

type exampleFile struct {
	MaxCartSize int           `json:"max_cart_size"`
	Examples    []exampleDump `json:"examples"`
}

// SaveExamples 把训练样本持久化为 JSON 工件（预处理与训练解耦）。
func SaveExamples(path string, examples []Example, maxCartSize int) error {
	dump := exampleFile{
		MaxCartSize: maxCartSize,
		Examples:    make([]exampleDump, len(examples)),
	}
	for i, ex := range examples {
		dump.Examples[i] = exampleDump{Cart: ex.Cart, Label: ex.Label}
	}
	data, err := json.Marshal(dump)
	if err != nil {
		return fmt.Errorf("marshal examples: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write examples: %w", err)
	}
	return nil
}

// SavePopularity 把热度分（外部商品 ID → 占比）持久化为 JSON 工件，
// 供在线服务启动时为目录热度排序打底。
func SavePopularity(path string, popularity map[int64]float64) error {
	data, err := json.Marshal(popularity)
	if err != nil {
		return fmt.Errorf("marshal popularity: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write popularity: %w", err)
	}
	return nil
}

// LoadPopularity 加载热度分工件。
func LoadPopularity(path string) (map[int64]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read popularity: %w", err)
	}
	popularity := make(map[int64]float64)
	if err := json.Unmarshal(data, &popularity); err != nil {
		return nil, fmt.Errorf("parse popularity: %w", err)
	}
	return popularity, nil
}

// LoadExamples 加载样本工件，校验样本形状一致。
func LoadExamples(path string) ([]Example, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read examples: %w", err)
	}
	var dump exampleFile
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, 0, fmt.Errorf("parse examples: %w", err)
	}
	examples := make([]Example, len(dump.Examples))
	for i, ex := range dump.Examples {
		if len(ex.Cart) != dump.MaxCartSize {
			return nil, 0, fmt.Errorf("example %d has cart length %d, want %d", i, len(ex.Cart), dump.MaxCartSize)
		}
		if ex.Label <= 0 {
			return nil, 0, fmt.Errorf("example %d has invalid label %d", i, ex.Label)
		}
		examples[i] = Example{Cart: ex.Cart, Label: ex.Label}
	}
	return examples, dump.MaxCartSize, nil
}
