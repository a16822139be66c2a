// Package config provides configuration loading for the aquaexport service and CLI.
// It merges built-in defaults, a YAML file and environment variables, then validates
// the result once at startup.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables with the AQUA_ prefix (highest priority)
//	2. YAML file (AQUA_CONFIG, aquaexport.yaml or configs/aquaexport.yaml)
//	3. Built-in defaults (lowest priority)
//
// A .env file in the working directory is loaded into the environment before
// the lookup starts.
//
// # Environment Variables
//
//	AQUA_DATABASE_DRIVER=pgx
//	AQUA_DATABASE_DSN=postgres://scada@localhost:5432/SCADA_arhiva_rab
//	AQUA_EXPORT_DIRECTORY=/srv/exports
//	AQUA_EXPORT_TIMEZONE=Europe/Zagreb
//	AQUA_LOGGING_LEVEL=debug
//
// # Modes
//
// Tag tables and workbook layouts live under the "modes" key of the YAML file.
// They cannot be set from the environment. A file that defines any mode replaces
// the built-in tables as a whole.
//
// # Testing
//
// Default() returns a complete configuration that needs no environment or files.
package config
