// Package blobstore is the object storage adapter: path-addressed objects in
// a gocloud.dev bucket, file-backed by default.
//
// Object paths use forward slashes ("videos/{userId}/{folder}/original") and
// are confined to the bucket root. Each object carries its content type and
// SHA256 as attributes, and downloads are verified against both. Layout
// helpers (OriginalPath, ArtifactPath, FolderToken) define where the pipeline
// stores each artifact.
package blobstore
