package config

// ConfigDiff describes what changed between two configs
type ConfigDiff struct {
	// Hot-reloadable
	DetectorChanged bool
	LogLevelChanged bool
	NewLogLevel     string

	// Only applied on restart
	PipelineChanged bool
	InputChanged    bool
	MetricsChanged  bool
}

// Diff compares old and new
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{
		DetectorChanged: old.Detector != new.Detector,
		PipelineChanged: old.Pipeline != new.Pipeline,
		InputChanged:    old.Input != new.Input,
		MetricsChanged:  old.Metrics != new.Metrics,
	}
	if old.Logging.Level != new.Logging.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Logging.Level.String()
	}
	return d
}

// NeedsRestart reports whether d contains changes a running process ignores
func (d ConfigDiff) NeedsRestart() bool {
	return d.PipelineChanged || d.InputChanged || d.MetricsChanged
}
