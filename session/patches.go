package session

import (
	"errors"
	"time"

	"github.com/AntonStoeckl/live-selectors-go/feed"
	"github.com/AntonStoeckl/live-selectors-go/statetree"
)

// storablePatchesFromOperations converts tree operations into patches of roomID.
// Paths are stored as JSON arrays of segments.
func storablePatchesFromOperations(
	roomID string,
	operations []statetree.Operation,
	occurredAt time.Time,
) (feed.StorablePatches, error) {

	patches := make(feed.StorablePatches, 0, len(operations))

	for _, operation := range operations {
		var valueJSON []byte

		if operation.Kind != statetree.OpDelete {
			encoded, err := statetree.EncodeValue(operation.Value)
			if err != nil {
				return nil, errors.Join(ErrEncodingOperationFailed, err)
			}

			valueJSON = encoded
		}

		path, err := statetree.EncodePath(operation.Path)
		if err != nil {
			return nil, errors.Join(ErrEncodingOperationFailed, err)
		}

		patch, err := feed.BuildStorablePatch(roomID, operation.Kind, path, valueJSON, occurredAt)
		if err != nil {
			return nil, errors.Join(ErrEncodingOperationFailed, err)
		}

		patches = append(patches, patch)
	}

	return patches, nil
}

// operationsFromStorablePatches converts stored patches back into tree operations.
func operationsFromStorablePatches(patches feed.StorablePatches) ([]statetree.Operation, error) {
	operations := make([]statetree.Operation, 0, len(patches))

	for _, patch := range patches {
		path, err := statetree.DecodePath(patch.Path)
		if err != nil {
			return nil, errors.Join(ErrDecodingPatchFailed, err)
		}

		operation := statetree.Operation{Kind: patch.Op, Path: path}

		if patch.Op != statetree.OpDelete {
			value, err := statetree.DecodeValue(patch.ValueJSON)
			if err != nil {
				return nil, errors.Join(ErrDecodingPatchFailed, err)
			}

			operation.Value = value
		}

		operations = append(operations, operation)
	}

	return operations, nil
}
