// Package database provides a GORM connection wrapper and lifecycle
// component for the execution store.
//
// The driver is chosen by configuration: "sqlite" for single-node
// deployments and tests, "postgres" (pgx) for shared deployments.
//
//	comp := database.NewComponent(database.Config{Driver: "postgres", DSN: dsn, AutoMigrate: true}, log).
//	    WithAutoMigrate(store.Models()...)
//	registry.Register(comp)
package database
