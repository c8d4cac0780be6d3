// Package config handles loading and validating FinBoard Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with FINBOARD_* environment variables
//   - Validation of required fields and the stream failure policy
//   - Default value handling, including the placeholder host allow-list
//
// Sensitive values (MQTT passwords) should be set via environment variables.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Dashboard.Name)
package config
