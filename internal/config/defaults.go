package config

const (
	defaultStorePath   = "~/.local/share/horizon/studio.db"
	defaultSeriesDir   = "~/.local/share/horizon/series"
	defaultLogDir      = "~/.local/share/horizon/logs"
	defaultLogFormat   = "console"
	defaultLogLevel    = "info"
	defaultRunLogLines = 8000
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorePath: defaultStorePath,
			SeriesDir: defaultSeriesDir,
			LogDir:    defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Workflow: Workflow{
			RunLogLines: defaultRunLogLines,
		},
	}
}
