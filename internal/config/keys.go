package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SABITAX_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "SABITAX_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SABITAX_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "SABITAX_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "SABITAX_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SABITAX_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "corpus.docs_dir", typ: kString, env: "SABITAX_CORPUS_DOCS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Corpus.DocsDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Corpus.DocsDir },
	},
	{
		key: "corpus.watch", typ: kBool, env: "SABITAX_CORPUS_WATCH",
		apply:   func(cfg *Config, v any) { cfg.Corpus.Watch = v.(bool) },
		extract: func(cfg Config) any { return cfg.Corpus.Watch },
	},
	{
		key: "vector.backend", typ: kString, env: "SABITAX_VECTOR_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Vector.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.Backend },
	},
	{
		key: "vector.qdrant_host", typ: kString, env: "SABITAX_VECTOR_QDRANT_HOST",
		apply:   func(cfg *Config, v any) { cfg.Vector.QdrantHost = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.QdrantHost },
	},
	{
		key: "vector.qdrant_port", typ: kInt, env: "SABITAX_VECTOR_QDRANT_PORT",
		apply:   func(cfg *Config, v any) { cfg.Vector.QdrantPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Vector.QdrantPort },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "SABITAX_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "agent.reflection_passes", typ: kInt, env: "SABITAX_AGENT_REFLECTION_PASSES",
		apply:   func(cfg *Config, v any) { cfg.Agent.ReflectionPasses = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.ReflectionPasses },
	},
	{
		key: "agent.generation_timeout", typ: kString, env: "SABITAX_AGENT_GENERATION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Agent.GenerationTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.GenerationTimeout },
	},
	{
		key: "log.level", typ: kString, env: "SABITAX_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		v := os.Getenv(s.env)
		if v == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, v)
		case kInt:
			if i, err := strconv.Atoi(v); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse int from %s=%q: %v. Using default value.\n", s.env, v, err)
			}
		case kBool:
			if bv, err := strconv.ParseBool(v); err == nil {
				s.apply(cfg, bv)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from %s=%q: %v. Using default value.\n", s.env, v, err)
			}
		}
	}
}
