// Package config handles loading and validating ButtRest configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with BUTTREST_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("BUTTREST_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Intiface.URL)
package config
