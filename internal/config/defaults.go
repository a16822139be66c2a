package config

import "time"

// Default returns the configuration of the original deployment: a PostgreSQL
// SCADA archive on localhost and the quality and quantity workbook layouts.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:       "pgx",
			DSN:          "postgres://postgres@localhost:5432/SCADA_arhiva_rab?sslmode=disable",
			Table:        "floattable",
			QueryTimeout: 30 * time.Second,
			MaxOpenConns: 4,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		Export: ExportConfig{
			Directory:   "exports",
			TemplateDir: "templates",
			Timezone:    "Europe/Zagreb",
			Workers:     4,
			VerifyMerge: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "console",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			At:    "04:00",
			Modes: []string{"kvaliteta_vode", "zahvacene_kolicine_vode"},
		},
		Telemetry: TelemetryConfig{
			EnableMetrics:  true,
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1,
		},
		Modes: map[string]ModeConfig{
			"kvaliteta_vode":          defaultQualityMode(),
			"zahvacene_kolicine_vode": defaultQuantityMode(),
		},
	}
}

func tag(id int) *int { return &id }

func qualityMetric(parameter string, id int, unit, maxCol, minCol, avgCol string) MetricConfig {
	return MetricConfig{
		Parameter:    parameter,
		Tag:          tag(id),
		Kind:         "quality",
		Unit:         unit,
		Precision:    2,
		PositiveOnly: true,
		Columns:      map[string]string{"MAX": maxCol, "MIN": minCol, "AVG": avgCol},
	}
}

func defaultQualityMode() ModeConfig {
	return ModeConfig{
		Template:    "kvaliteta_vode_template.xlsx",
		FilePattern: "kvaliteta_vode_%d.xlsx",
		SheetPrefix: "P-",
		YearCells:   []string{"B9", "B57", "B105"},
		Locations: []LocationConfig{
			{
				Name:   "PK Barbat",
				Anchor: 11,
				Metrics: []MetricConfig{
					qualityMetric("mutnoca", 3, "NTU", "C", "D", "E"),
					qualityMetric("klor", 21, "mg/l", "F", "G", "H"),
					qualityMetric("temp", 134, "°C", "I", "J", "K"),
					qualityMetric("pH", 132, "pH", "L", "M", "N"),
					qualityMetric("redox", 133, "mV", "O", "P", "Q"),
				},
			},
			{
				Name:   "VS Lopar",
				Anchor: 59,
				Metrics: []MetricConfig{
					qualityMetric("klor", 151, "mg/l", "C", "D", "E"),
					qualityMetric("temp", 155, "°C", "F", "G", "H"),
					qualityMetric("redox", 156, "mV", "I", "J", "K"),
				},
			},
			{
				Name:   "VS Perici",
				Anchor: 107,
				Metrics: []MetricConfig{
					qualityMetric("klor", 72, "mg/l", "C", "D", "E"),
					qualityMetric("temp", 82, "°C", "F", "G", "H"),
					qualityMetric("redox", 81, "mV", "I", "J", "K"),
				},
			},
		},
	}
}

func volumeMetric(parameter string, id int, col string) MetricConfig {
	return MetricConfig{
		Parameter: parameter,
		Tag:       tag(id),
		Kind:      "counter",
		Unit:      "m3",
		Columns:   map[string]string{"MAX": col},
	}
}

func flowMetric(parameter string, id int, col string) MetricConfig {
	return MetricConfig{
		Parameter: parameter,
		Tag:       tag(id),
		Kind:      "flow",
		Unit:      "l/s",
		Precision: 2,
		Columns:   map[string]string{"MAX": col},
	}
}

// Column D of every quantity block holds a formula and is never a target.
func defaultQuantityMode() ModeConfig {
	return ModeConfig{
		Template:    "zahvacene_kolicine_vode_template.xlsx",
		FilePattern: "zahvacene_kolicine_%d.xlsx",
		SheetPrefix: "P2-",
		Locations: []LocationConfig{
			{
				Name:   "Hrvatsko primorje južni ogranak",
				Anchor: 11,
				Metrics: []MetricConfig{
					volumeMetric("volume_in", 14, "C"),
					flowMetric("max_flow_in", 18, "E"),
					volumeMetric("volume_out", 13, "F"),
				},
			},
			{
				Name:   "Perići",
				Anchor: 60,
				Metrics: []MetricConfig{
					volumeMetric("volume_in", 67, "C"),
					flowMetric("max_flow_in", 68, "E"),
				},
			},
			{
				Name:   "Gvačići I",
				Anchor: 108,
				Metrics: []MetricConfig{
					volumeMetric("volume_in", 103, "C"),
				},
			},
			{
				Name:   "Mlinica",
				Anchor: 156,
				Metrics: []MetricConfig{
					volumeMetric("volume_in", 51, "C"),
					flowMetric("max_flow_in", 52, "E"),
				},
			},
		},
	}
}
