package ports

import "context"

// LatestVersion resolves to the most recently uploaded snapshot of a model name
const LatestVersion = "latest"

// ModelRegistry stores saved model snapshot directories under a logical name and version
type ModelRegistry interface {
	// UploadModel copies the snapshot directory at localPath and returns its remote location
	UploadModel(ctx context.Context, name, version, localPath string) (string, error)

	// DownloadModel fetches a snapshot into a local directory and returns that path.
	// version may be LatestVersion.
	DownloadModel(ctx context.Context, name, version string) (string, error)
}
