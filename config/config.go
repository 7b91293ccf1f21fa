package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	LLM         LLMConfig         `yaml:"llm"`
	Research    ResearchConfig    `yaml:"research"`
	ThreatModel ThreatModelConfig `yaml:"threat_model"`
	Probe       ProbeConfig       `yaml:"probe"`
}

type ServerConfig struct {
	Port       string        `yaml:"port"`
	Mode       string        `yaml:"mode"` // debug, release
	MaxWorkers int           `yaml:"max_workers"`
	QueueSize  int           `yaml:"queue_size"`
	JobTimeout time.Duration `yaml:"job_timeout"`
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

type LLMConfig struct {
	APIURL    string `yaml:"api_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ResearchConfig Deep Research 轮次与单轮重试预算
type ResearchConfig struct {
	MaxTurns        int `yaml:"max_turns"`
	DispatchRetries int `yaml:"dispatch_retries"`
}

// ThreatModelConfig 威胁模型生成的修复预算
type ThreatModelConfig struct {
	RepairAttempts int `yaml:"repair_attempts"`
}

// ProbeConfig 诊断客户端默认值
type ProbeConfig struct {
	Endpoint  string `yaml:"endpoint"`
	OutputDir string `yaml:"output_dir"`
	Language  string `yaml:"language"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

// Default 内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8001",
			Mode:       "debug",
			MaxWorkers: 4,
			QueueSize:  64,
			JobTimeout: 30 * time.Minute,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/deepresearch.db",
		},
		LLM: LLMConfig{
			APIURL:    "https://api.openai.com/v1",
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		Research: ResearchConfig{
			MaxTurns:        4,
			DispatchRetries: 1,
		},
		ThreatModel: ThreatModelConfig{
			RepairAttempts: 1,
		},
		Probe: ProbeConfig{
			Endpoint:  "ws://localhost:8001/ws/chat",
			OutputDir: "outputs",
			Language:  "en",
		},
	}
}

func loadConfig() *Config {
	config := Default()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			klog.Warningf("[config] 解析配置文件失败: path=%s, err=%v", configPath, err)
		}
	}

	applyEnv(config)
	return config
}

// applyEnv 环境变量优先级高于配置文件
func applyEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		config.LLM.Model = model
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		config.Server.Port = port
	} else if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	envInt("MAX_WORKERS", &config.Server.MaxWorkers)
	envInt("RESEARCH_MAX_TURNS", &config.Research.MaxTurns)
	envInt("RESEARCH_DISPATCH_RETRIES", &config.Research.DispatchRetries)
	envInt("THREAT_MODEL_REPAIR_ATTEMPTS", &config.ThreatModel.RepairAttempts)

	if endpoint := os.Getenv("PROBE_ENDPOINT"); endpoint != "" {
		config.Probe.Endpoint = endpoint
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		klog.Warningf("[config] 环境变量 %s=%q 不是整数，已忽略", key, v)
		return
	}
	*dst = n
}
