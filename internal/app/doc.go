// Package app composes the oracle layer into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── feed/           # Feeds, fillers, rounds, votes
//	│   └── feeder/         # Feeders, admissions, stake ledger
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces
//	│   ├── memory/         # In-memory implementation for testing
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/           # Business logic (stake, registry, challenge, ...)
//	├── chain/              # Clock and token contract adapters
//	├── guard/              # Reentrancy exclusion for fund-moving calls
//	├── httpapi/            # HTTP API handlers and routing
//	├── system/             # Lifecycle manager and the pause breaker
//	└── metrics/            # Prometheus collectors
//
// The app package wires services to stores and collaborators; business
// rules live under services/, persistence under storage/. HTTP concerns
// stay in httpapi and never leak into the services.
package app
