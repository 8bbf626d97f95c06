package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default agentbox data directory name (relative to home).
	DefaultDataDir = ".agentbox"
	// DBFile is the SQLite database filename inside the data directory.
	DBFile = "agentbox.db"

	// DefaultWorkspaceImage is the default container image tasks run in.
	DefaultWorkspaceImage = "ghcr.io/slok/agentbox-workspace:latest"

	// ContainerNamePrefix prefixes every sandbox container name.
	ContainerNamePrefix = "agentbox-"
)

// DBPath returns the full path of the SQLite database.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}
