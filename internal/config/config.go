package config

// Config holds the full service configuration.
type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Corpus    CorpusConfig
	Vector    VectorConfig
	Retrieval RetrievalConfig
	Agent     AgentConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type CorpusConfig struct {
	DocsDir string
	Watch   bool
}

type VectorConfig struct {
	Backend    string // "sqlite" or "qdrant"
	QdrantHost string
	QdrantPort int
}

type RetrievalConfig struct {
	TopK int
}

type AgentConfig struct {
	ReflectionPasses  int
	GenerationTimeout string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.1",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Corpus: CorpusConfig{
			DocsDir: defaultDocsDir(dataDir),
			Watch:   false,
		},
		Vector: VectorConfig{
			Backend:    "sqlite",
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Retrieval: RetrievalConfig{
			TopK: 4,
		},
		Agent: AgentConfig{
			ReflectionPasses:  2,
			GenerationTimeout: "60s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/sabitax/config.json, then applies SABITAX_*
// environment variable overrides. Secrets (the API bearer token)
// are environment-only.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
