package env

// Build identification, injected at link time via -ldflags.
var (
	SoftwareVer   = ""
	BuildTime     = ""
	BuildTag      = ""
	BuildCommitId = ""
)
