package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TestNewRotationWriter 测试创建轮换 writer
func TestNewRotationWriter(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "proctor.log")

	tests := []struct {
		name   string
		config *RotationConfig
	}{
		{
			name:   "size rotation",
			config: &RotationConfig{Type: RotationBySize, MaxSize: 10, MaxBackups: 3, MaxAge: 7},
		},
		{
			name: "time rotation",
			config: &RotationConfig{
				Type:            RotationByTime,
				RotationTime:    "1h",
				MaxAgeTime:      "24h",
				RotationPattern: ".%Y%m%d%H",
			},
		},
		{
			name:   "empty type falls back to size",
			config: &RotationConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewRotationWriter(tt.config, outputPath)
			require.NoError(t, err)
			assert.NotNil(t, w)
		})
	}
}

// TestSizeRotationWriter 测试 lumberjack 参数透传
func TestSizeRotationWriter(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "size.log")
	cfg := &RotationConfig{Type: RotationBySize, MaxSize: 10, MaxBackups: 3, MaxAge: 7, Compress: true}

	w := newSizeRotationWriter(cfg, outputPath)
	lj, ok := w.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, outputPath, lj.Filename)
	assert.Equal(t, 10, lj.MaxSize)
	assert.Equal(t, 3, lj.MaxBackups)
	assert.True(t, lj.Compress)
}

// TestFileOutput 测试文件输出
func TestFileOutput(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "file.log")
	l, err := New(&Config{
		Level:      InfoLevel,
		Format:     JSONFormat,
		EnableFile: true,
		OutputPath: outputPath,
	})
	require.NoError(t, err)

	l.Info("proctoring websocket server started", "addr", "0.0.0.0:8080")
	_ = l.Sync()

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "proctoring websocket server started")
}
