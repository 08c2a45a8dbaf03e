package config

const (
	defaultConfigPath  = "~/.config/sidecar/config.toml"
	defaultLogDir      = "~/.local/share/sidecar/logs"
	defaultJournalPath = "~/.local/share/sidecar/journal.db"
	defaultHistoryKey  = "post_training_processing"
	defaultIndent      = 4
	defaultToolName    = "sidecar"
	defaultLogFormat   = "console"
	defaultLogLevel    = "info"
	maxIndent          = 8
)

func defaultImageExtensions() []string {
	return []string{".png", ".jpg", ".jpeg"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir(),
			LogDir:   defaultLogDir,
		},
		Scan: Scan{
			ImageExtensions: defaultImageExtensions(),
		},
		Sidecar: Sidecar{
			HistoryKey: defaultHistoryKey,
			Indent:     defaultIndent,
			ToolName:   defaultToolName,
		},
		Journal: Journal{
			Path: defaultJournalPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
