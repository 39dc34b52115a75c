// Package logger provides structured logging for flowgate services using
// zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers carrying execution and workflow identifiers.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.NewDefault("flowgate").WithComponent("orchestrator")
//	log.Info("phase started", logger.Fields(logger.FieldExecutionID, id, logger.FieldPhase, 2))
package logger
