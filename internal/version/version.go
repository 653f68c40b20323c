package version

// Version is overridden at build time with -ldflags "-X ollama-gateway/internal/version.Version=...".
var Version = "dev"

// UserAgent is sent on every upstream request.
func UserAgent() string {
	return "ollama-gateway/" + Version
}
