package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigAppliesDefaults 验证只给出部分配置时，其余字段使用默认值
func TestLoadConfigAppliesDefaults(t *testing.T) {
	yamlContent := `
llm:
  base_url: "http://ollama.internal:11434"
retrieval:
  top_k: 6
ranking:
  workers: 2
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644), "无法写入临时配置文件")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err, "加载配置不应返回错误")
	require.NotNil(t, cfg)

	assert.Equal(t, "http://ollama.internal:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "mistral", cfg.LLM.Model, "默认模型应为 mistral")
	assert.Equal(t, "mistral", cfg.LLM.EmbeddingModel, "向量模型默认与对话模型相同")
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 1000, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 100, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, 6, cfg.Retrieval.TopK)
	assert.Equal(t, 2, cfg.Ranking.Workers)
	assert.Equal(t, "pdf_feedback", cfg.Ranking.FeedbackDir)
	assert.Equal(t, "batch_ranking_results.csv", cfg.Ranking.CSVPath)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.False(t, cfg.RabbitMQEnabled(), "未配置的 RabbitMQ 应视为关闭")
	assert.False(t, cfg.MySQLEnabled())
}

// TestLoadConfigInvalidOverlap 验证重叠大于窗口时被重置
func TestLoadConfigInvalidOverlap(t *testing.T) {
	yamlContent := `
retrieval:
  chunk_size: 200
  chunk_overlap: 500
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 100, cfg.Retrieval.ChunkOverlap, "非法的重叠应回退为默认值")
}

// TestLoadConfigChunkOverlap 验证省略 chunk_overlap 时使用默认值，显式写 0 时保留
func TestLoadConfigChunkOverlap(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm: {model: llama3}\n"), 0644))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 100, cfg.Retrieval.ChunkOverlap)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, "llama3", cfg.LLM.EmbeddingModel, "向量模型跟随文件中的对话模型")

	require.NoError(t, os.WriteFile(configPath, []byte("retrieval:\n  chunk_overlap: 0\n"), 0644))
	cfg, err = LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Retrieval.ChunkOverlap, "显式的零重叠应保留")
}

// TestLoadConfigEnvOverride 验证环境变量覆盖文件配置
func TestLoadConfigEnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  model: llama3\n"), 0644))

	t.Setenv("OLLAMA_MODEL", "mistral-nemo")
	t.Setenv("SERVER_API_KEYS", "k1,k2")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "mistral-nemo", cfg.LLM.Model)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err, "显式指定的配置文件不存在时应返回错误")
}

func TestGetModelForTask(t *testing.T) {
	cfg := createDefaultConfig()
	cfg.LLM.TaskModels = map[string]string{"qa": "llama3"}

	assert.Equal(t, "llama3", cfg.GetModelForTask("qa"))
	assert.Equal(t, "mistral", cfg.GetModelForTask("feedback"))
	assert.Equal(t, 60, cfg.GetQPMForModel("mistral"))
	assert.Equal(t, cfg.LLM.QPM, cfg.GetQPMForModel("unknown-model"))
}

func TestCreateSampleConfigDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, CreateSampleConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)

	assert.Error(t, CreateSampleConfig(path), "已存在的文件不应被覆盖")
}
