package config

import (
	"testing"

	"github.com/rc-ventura/educajus-br-ai/internal/domain"
)

func validConfig() Config {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Index: IndexConfig{
			Driver:  "chromem",
			Chromem: ChromemConfig{Path: "data/index"},
		},
		Embedding: EmbeddingConfig{Model: "text-embedding-3-small"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Index.Driver = "faiss"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}

	expected := `index.driver must be "chromem" or "redis", got "faiss"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_MissingChromemPath(t *testing.T) {
	cfg := validConfig()
	cfg.Index.Chromem.Path = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing chromem path")
	}
}

func TestValidate_RedisDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Index.Driver = "redis"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}

	cfg.Index.Redis.Addrs = []string{"localhost:6379"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis metadata path")
	}

	cfg.Index.Redis.MetadataPath = "data/index"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingEmbeddingModel(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Model = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing embedding model")
	}
}

func TestValidate_UnknownSeverityKind(t *testing.T) {
	cfg := validConfig()
	cfg.Intake.Severity["passport"] = "block"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown finding kind")
	}
}

func TestValidate_InvalidSeverityValue(t *testing.T) {
	cfg := validConfig()
	cfg.Intake.Severity[string(domain.FindingCPF)] = "reject"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid severity value")
	}
}

func TestValidate_InvalidWarnDisclosure(t *testing.T) {
	cfg := validConfig()
	cfg.Intake.WarnDisclosure = "broadcast"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid warn disclosure")
	}
}

func TestValidate_DefaultKExceedsMaxK(t *testing.T) {
	cfg := validConfig()
	cfg.Retrieval.DefaultK = 20
	cfg.Retrieval.MaxK = 10

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for default_k > max_k")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Index.Driver != "chromem" {
		t.Errorf("expected driver=chromem, got %s", cfg.Index.Driver)
	}
	if cfg.Index.Chromem.Collection != "cdc" {
		t.Errorf("expected collection=cdc, got %s", cfg.Index.Chromem.Collection)
	}
	if cfg.Intake.MaskToken != "[dado-removido]" {
		t.Errorf("expected default mask token, got %q", cfg.Intake.MaskToken)
	}
	if cfg.Intake.WarnDisclosure != "log" {
		t.Errorf("expected warn_disclosure=log, got %q", cfg.Intake.WarnDisclosure)
	}
	if cfg.Retrieval.DefaultK != 5 || cfg.Retrieval.MaxK != 10 || cfg.Retrieval.MinEvidence != 2 {
		t.Errorf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if got := cfg.Intake.Severity[string(domain.FindingCaseNumber)]; got != string(domain.SeverityWarn) {
		t.Errorf("expected case_number=warn, got %q", got)
	}
	if got := cfg.Intake.Severity[string(domain.FindingCPF)]; got != string(domain.SeverityBlock) {
		t.Errorf("expected cpf=block, got %q", got)
	}
	if len(cfg.Intake.InScopeTerms) == 0 || len(cfg.Intake.OutOfScopeTerms) == 0 {
		t.Error("expected default scope term lists")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("EDUCAJUS_TEST_PORT", "9090")

	in := []byte("port: ${EDUCAJUS_TEST_PORT}\nmodel: ${EDUCAJUS_TEST_MODEL:-fallback-model}\nempty: ${EDUCAJUS_TEST_UNSET}\n")
	got := string(expandEnvVars(in))

	want := "port: 9090\nmodel: fallback-model\nempty: \n"
	if got != want {
		t.Errorf("expandEnvVars:\ngot:  %q\nwant: %q", got, want)
	}
}
