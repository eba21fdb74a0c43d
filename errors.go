package locstore

import "errors"

var (
	// ErrBlobsNotSupported is returned by GetBlob when the backend selected
	// for reads does not implement blob storage. The router never falls back
	// to the other backend.
	ErrBlobsNotSupported = errors.New("locstore: blobs not supported")

	// ErrBlobTooLarge is returned by PutBlob when the blob exceeds the
	// configured size ceiling.
	ErrBlobTooLarge = errors.New("locstore: blob exceeds size ceiling")

	// ErrNoActiveMachines is returned by RandomMachine when the cluster has
	// no known active machine.
	ErrNoActiveMachines = errors.New("locstore: no active machines")

	// ErrNotFound is returned by GetBlob for a hash with no stored blob.
	ErrNotFound = errors.New("locstore: not found")
)
