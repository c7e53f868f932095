package main

// Version information, injected at build time:
//
//	go build -ldflags="-X main.Version=1.2.3 -X main.BuildDate=2026-01-01 -X main.CommitID=abc123"
var (
	// Version is the semantic version of the application
	Version = "dev"

	// BuildDate is the build timestamp
	BuildDate = "unknown"

	// CommitID is the short git commit hash
	CommitID = "unknown"
)
