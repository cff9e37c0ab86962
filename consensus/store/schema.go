package store

// Bucket names for the bbolt-backed Block Store. Each concern gets its own
// bucket rather than a prefix scheme.
var (
	blocksBucket           = []byte("blocks")
	blockRecordsBucket     = []byte("block-records")
	chainMembershipBucket  = []byte("chain-membership")
	subEpochSegmentsBucket = []byte("sub-epoch-segments")
	peakBucket             = []byte("peak")
)

// peakKey is the single key inside peakBucket holding the current peak hash.
var peakKey = []byte("peak")

var allBuckets = [][]byte{
	blocksBucket,
	blockRecordsBucket,
	chainMembershipBucket,
	subEpochSegmentsBucket,
	peakBucket,
}
