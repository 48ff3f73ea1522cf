package rules

import "testing"

func TestFilter_Keep(t *testing.T) {
	tests := []struct {
		name string
		expr string
		vars map[string]any
		want bool
	}{
		{
			name: "probability floor passes",
			expr: "probability >= 0.01",
			vars: map[string]any{"probability": 0.2},
			want: true,
		},
		{
			name: "probability floor rejects",
			expr: "probability >= 0.01",
			vars: map[string]any{"probability": 0.001},
			want: false,
		},
		{
			name: "department exclusion",
			expr: `department != "alcohol"`,
			vars: map[string]any{"department": "alcohol"},
			want: false,
		},
		{
			name: "combined condition",
			expr: `aisle.contains("frozen") && score > 0.05`,
			vars: map[string]any{"aisle": "frozen meals", "score": 0.1},
			want: true,
		},
		{
			name: "integer score coerced to double",
			expr: "score >= 0.5",
			vars: map[string]any{"score": 1},
			want: true,
		},
		{
			name: "float32 probability coerced to double",
			expr: "probability < 0.5",
			vars: map[string]any{"probability": float32(0.25)},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilter(tt.expr)
			if err != nil {
				t.Fatalf("NewFilter() error = %v", err)
			}
			got, err := f.Keep(tt.vars)
			if err != nil {
				t.Fatalf("Keep() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Keep() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_CompileErrors(t *testing.T) {
	if _, err := NewFilter("probability +"); err == nil {
		t.Error("malformed expression must fail to compile")
	}
	if _, err := NewFilter("probability + 1.0"); err == nil {
		t.Error("non-bool expression must be rejected")
	}
}
