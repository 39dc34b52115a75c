// Package config loads flowgate process configuration.
//
// Load resolves a YAML file and an optional .env file, binds FLOWGATE_*
// environment variables over them with viper, then applies defaults and
// validates the result with go-playground/validator tags and each
// section's Validate method.
//
//	var cfg app.Config
//	err := config.Load("flowgate", &cfg, config.WithConfigFile(path))
package config
