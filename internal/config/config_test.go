package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(defaults())
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	if cfg.Search.Endpoint != "https://svc-api.map.naver.com/v1/fusion-search/all" {
		t.Errorf("unexpected search endpoint %q", cfg.Search.Endpoint)
	}
	if len(cfg.Search.Keywords) != len(DefaultKeywords) {
		t.Errorf("expected %d default keywords, got %v", len(DefaultKeywords), cfg.Search.Keywords)
	}
	if cfg.S3.PartSize != 100<<20 {
		t.Errorf("expected 100MiB part size, got %d", cfg.S3.PartSize)
	}
	if cfg.LLM.PollInterval != 10*time.Second || cfg.LLM.ChunkDelay != 30*time.Second || cfg.LLM.QuotaWait != time.Minute {
		t.Errorf("unexpected llm timings: %+v", cfg.LLM)
	}
	if cfg.Images.MaxDimension != 1024 {
		t.Errorf("expected max dimension 1024, got %d", cfg.Images.MaxDimension)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(v *viper.Viper)
		wantErr string
	}{
		{"Inverted Workers", func(v *viper.Viper) { v.Set("scraper.min_workers", 9) }, "scraper workers"},
		{"Unknown LLM Mode", func(v *viper.Viper) { v.Set("llm.mode", "stream") }, "llm.mode"},
		{"Unknown Provider", func(v *viper.Viper) { v.Set("llm.provider", "claude") }, "llm.provider"},
		{"Unknown Output", func(v *viper.Viper) { v.Set("output.format", "xml") }, "output.format"},
		{"Tiny Part Size", func(v *viper.Viper) {
			v.Set("s3.bucket", "places")
			v.Set("s3.part_size", 1024)
		}, "s3.part_size"},
		{"Detail URL Without Placeholder", func(v *viper.Viper) { v.Set("scraper.detail_url", "https://x") }, "detail_url"},
		{"Empty Keywords", func(v *viper.Viper) { v.Set("search.keywords", []string{" ", ""}) }, "search.keywords"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := defaults()
			tt.mutate(v)
			_, err := FromViper(v)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pawmap.yaml")
	content := `
search:
  keywords: ["강아지 유치원", "강아지 유치원", "애견 호텔"]
output:
  format: xlsx
llm:
  mode: "off"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PAWMAP_SCRAPER_MAX_RETRIES", "5")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Output.Format != "xlsx" || cfg.LLM.Mode != "off" {
		t.Errorf("file values not applied: %+v %+v", cfg.Output, cfg.LLM)
	}
	if len(cfg.Search.Keywords) != 2 {
		t.Errorf("expected duplicate keywords to collapse, got %v", cfg.Search.Keywords)
	}
	if cfg.Scraper.MaxRetries != 5 {
		t.Errorf("env override not applied, got %d", cfg.Scraper.MaxRetries)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("OPENAI_API_KEY not bound, got %q", cfg.LLM.APIKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for explicit missing config file")
	}
}
