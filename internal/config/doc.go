// Package config defines configuration structures for the gridfetch CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (GRIDFETCH_ prefix), optionally from a .env file
//   - YAML configuration file
//
// Flags override the environment, which overrides the file, which overrides
// Default.
//
// # Example
//
//	manifest: s3://carbonplan-climate-impacts/extreme-heat/v1.0/inputs/nex-gddp-cmip6-files.csv
//	storage: data
//	workers: 4
//	models: [ACCESS-CM2, GFDL-ESM4]
//	variables: [tasmax, tasmin]
//	scenarios:
//	  historical: {start: 1985, end: 2013}
//	  ssp245: {start: 2015, end: 2099}
//	bbox: {west: -86.6, east: -86.5, south: 39.0, north: 39.5}
//	timeout: 30s
//	politeness:
//	  delay: 1s
//	  jitter: 2s
//	retry:
//	  attempts: 2
//	  backoff: 5s
//	  max_backoff: 30s
package config
