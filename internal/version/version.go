package version

// Set at build time via -ldflags "-X github.com/inclawbate/staking-engine/internal/version.Version=..."
var (
	Version = "unknown"
	Commit  = "unknown"
)

func GetVersion() string {
	return Version
}

func GetCommit() string {
	return Commit
}
