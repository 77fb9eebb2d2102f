package main

// Exit codes.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing config, unusable profile)
	ExitNoPapers    = 3 // Run completed but no candidates were collected
	ExitSendError   = 4 // Digest assembled but email delivery failed
)
