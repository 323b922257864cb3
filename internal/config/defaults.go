package config

const dataRoot = "/usr/local/var/fieldscout/data"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 5
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 10
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = dataRoot + "/db/fieldscout.db"
	}
	if cfg.Model.Backend == "" {
		cfg.Model.Backend = "onnx"
	}
	if cfg.Model.ModelPath == "" && cfg.Model.Backend == "onnx" {
		cfg.Model.ModelPath = dataRoot + "/models/plant_disease.onnx"
	}
	if cfg.Model.LabelsPath == "" {
		cfg.Model.LabelsPath = dataRoot + "/models/labels.txt"
	}
	if cfg.Model.CalibrationPath == "" {
		cfg.Model.CalibrationPath = dataRoot + "/models/calibration.json"
	}
	if cfg.Model.Version == "" {
		cfg.Model.Version = "mobilenetv2-v1"
	}
	if cfg.Model.InputSize == 0 {
		cfg.Model.InputSize = 224
	}
	if cfg.Model.MaxDecodeDim == 0 {
		cfg.Model.MaxDecodeDim = 1024
	}
	if cfg.Model.MaxPixels == 0 {
		cfg.Model.MaxPixels = 50_000_000
	}
	if cfg.Model.Layout == "" {
		cfg.Model.Layout = "nhwc"
	}
	if cfg.Model.CacheSize == 0 {
		cfg.Model.CacheSize = 256
	}
	if cfg.Analysis.TopK == 0 {
		cfg.Analysis.TopK = 3
	}
	if cfg.Advisor.KnowledgePath == "" {
		cfg.Advisor.KnowledgePath = dataRoot + "/kb/kb.jsonl"
	}
	if cfg.Advisor.TopKDocs == 0 {
		cfg.Advisor.TopKDocs = 3
	}
	if cfg.Advisor.Generator == "" {
		cfg.Advisor.Generator = "template"
	}
	if cfg.Advisor.OpenAI.APIKeyEnv == "" {
		cfg.Advisor.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Advisor.OpenAI.Model == "" {
		cfg.Advisor.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Advisor.OpenAI.MaxTokens == 0 {
		cfg.Advisor.OpenAI.MaxTokens = 600
	}
	if cfg.Advisor.OpenAI.TimeoutSeconds == 0 {
		cfg.Advisor.OpenAI.TimeoutSeconds = 30
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".jpg", ".jpeg", ".png", ".webp", ".bmp", ".tif", ".tiff", ".gif"}
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = 400
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
