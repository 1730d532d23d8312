package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/minutes/core"
)

// Key prefixes for different data types. Every record and index prefix ends
// in ':' so that prefix scans never cross into a neighbouring key space.
const (
	documentPrefix        = "doc:"
	chunkPrefix           = "chk:"
	chunkDocumentPrefix   = "chkd:"
	chunkChecksumPrefix   = "chkc:"
	chunkIDSeq            = "chkseq"
	clusterPrefix         = "fcl:"
	clusterDocumentPrefix = "fcld:"
	clusterOwnerPrefix    = "fclo:"
	clusterIDSeq          = "fclseq"
	eventPrefix           = "evt:"
	eventSeq              = "evtseq"
	eventFloorKey         = "evtfloor"
	usagePrefix           = "use:"
)

// appendUint64 appends v in BigEndian order so lexicographic sort matches
// numeric sort.
func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// makeIDKey generates prefix + id.
func makeIDKey(prefix string, id core.ID) []byte {
	return appendUint64([]byte(prefix), uint64(id))
}

// makePairKey generates a composite key prefix + parent + child.
func makePairKey(prefix string, parent, child core.ID) []byte {
	return appendUint64(makeIDKey(prefix, parent), uint64(child))
}

// idAt decodes the BigEndian uint64 found at offset in key.
func idAt(key []byte, offset int) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[offset : offset+8]))
}

func makeDocumentKey(id core.ID) []byte {
	return makeIDKey(documentPrefix, id)
}

func makeChunkKey(id core.ID) []byte {
	return makeIDKey(chunkPrefix, id)
}

// makeChunkDocumentKey generates a key for the chunk-by-document index.
// Format: prefix:documentID:chunkID
func makeChunkDocumentKey(documentID, chunkID core.ID) []byte {
	return makePairKey(chunkDocumentPrefix, documentID, chunkID)
}

// makeChunkChecksumKey generates the unique (document, checksum) index key.
// Format: prefix:documentID:checksum
func makeChunkChecksumKey(documentID core.ID, checksum string) []byte {
	return append(makeIDKey(chunkChecksumPrefix, documentID), checksum...)
}

func makeClusterKey(id core.ID) []byte {
	return makeIDKey(clusterPrefix, id)
}

// makeClusterDocumentKey generates a key for the cluster-by-document index.
// Format: prefix:documentID:clusterID
func makeClusterDocumentKey(documentID, clusterID core.ID) []byte {
	return makePairKey(clusterDocumentPrefix, documentID, clusterID)
}

// makePartialClusterOwnerKey generates the scan prefix for one owner's
// clusters. The owner is length prefixed so one owner's name can't be a
// prefix of another's key space.
func makePartialClusterOwnerKey(owner string) []byte {
	buf := appendUint64([]byte(clusterOwnerPrefix), uint64(len(owner)))
	return append(buf, owner...)
}

// makeClusterOwnerKey generates a key for the cluster-by-owner index.
// Format: prefix:len(owner):owner:clusterID
func makeClusterOwnerKey(owner string, clusterID core.ID) []byte {
	return appendUint64(makePartialClusterOwnerKey(owner), uint64(clusterID))
}

func makeEventKey(token uint64) []byte {
	return appendUint64([]byte(eventPrefix), token)
}

// makePartialUsageKey generates the scan prefix for an owner's usage
// records created at or after since.
func makePartialUsageKey(owner string, since time.Time) []byte {
	buf := appendUint64([]byte(usagePrefix), uint64(len(owner)))
	buf = append(buf, owner...)
	if since.IsZero() {
		return buf
	}
	return appendUint64(buf, uint64(since.UnixMicro()))
}

// makeUsageKey generates a key for a usage record.
// Format: prefix:len(owner):owner:createdAt:id
func makeUsageKey(record *core.UsageRecord) []byte {
	buf := makePartialUsageKey(record.Owner, time.Time{})
	buf = appendUint64(buf, uint64(record.CreatedAt.UnixMicro()))
	return append(buf, record.Id...)
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processor string) []byte {
	return []byte(fmt.Sprintf("%s:chkpt", processor))
}
