package vocab

import (
	"encoding/json"
	"fmt"
	"os"
)

// Save 将词表持久化为 JSON 工件。训练与在线推理加载同一份文件。
func (v *Vocabulary) Save(path string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal vocabulary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write vocabulary: %w", err)
	}
	return nil
}

// Load 从 JSON 工件加载词表，并校验双射不变量。
func Load(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var v Vocabulary
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}
