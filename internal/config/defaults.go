package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Source.Extensions == nil {
		cfg.Source.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx", ".pptx", ".odp", ".ods", ".odt", ".rtf"}
	}
	if cfg.Paths.StatePath == "" {
		cfg.Paths.StatePath = "/usr/local/var/torikomi/data/state.json"
	}
	if cfg.Paths.ListingCachePath == "" {
		cfg.Paths.ListingCachePath = "/usr/local/var/torikomi/data/listing-cache.json"
	}
	if cfg.Paths.EnrichmentCache == "" {
		cfg.Paths.EnrichmentCache = "/usr/local/var/torikomi/data/enrichment.db"
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.ProgressEvery == 0 {
		cfg.Pipeline.ProgressEvery = 10
	}
	if cfg.Pipeline.CacheTTLMinutes == 0 {
		cfg.Pipeline.CacheTTLMinutes = 30
	}
	if cfg.Extraction.SidecarThreshold == 0 {
		cfg.Extraction.SidecarThreshold = 0.99
	}
	if cfg.Extraction.DirectThreshold == 0 {
		cfg.Extraction.DirectThreshold = 0.5
	}
	if cfg.Extraction.OCRThreshold == 0 {
		cfg.Extraction.OCRThreshold = 0.3
	}
	if cfg.Enrichment.Host == "" {
		cfg.Enrichment.Host = "http://localhost:11434/v1"
	}
	if cfg.Enrichment.Model == "" {
		cfg.Enrichment.Model = "qwen2.5:3b"
	}
	if cfg.Enrichment.TimeoutSeconds == 0 {
		cfg.Enrichment.TimeoutSeconds = 60
	}
	if cfg.Enrichment.RetryMaxAttempts == 0 {
		cfg.Enrichment.RetryMaxAttempts = 3
	}
	if cfg.Enrichment.RetryBaseDelayMs == 0 {
		cfg.Enrichment.RetryBaseDelayMs = 2000
	}
	if cfg.Enrichment.MaxChunkChars == 0 {
		cfg.Enrichment.MaxChunkChars = 24000
	}
	if cfg.Enrichment.ChunkOverlap == 0 {
		cfg.Enrichment.ChunkOverlap = 500
	}
	if cfg.Enrichment.DefaultCostUnits == 0 {
		cfg.Enrichment.DefaultCostUnits = 1.0
	}
	if cfg.OCR.Rasterizer == "" {
		cfg.OCR.Rasterizer = "pdftoppm"
	}
	if cfg.OCR.Engine == "" {
		cfg.OCR.Engine = "tesseract"
	}
	if cfg.OCR.TimeoutSeconds == 0 {
		cfg.OCR.TimeoutSeconds = 120
	}
	if cfg.OCR.DPI == 0 {
		cfg.OCR.DPI = 300
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8091
	}
}
