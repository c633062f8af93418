package store

// Run identifies one engine run in the trace log.
type Run struct {
	ID     string
	Name   string
	Source string
	Labels map[string]string
}

// Write is one status write attempted by the modifier.
// Applied is false when the reservoir rejected the write.
type Write struct {
	RunID    string
	Cycle    int64
	Seq      int64
	Status   string
	Operator string
	Value    string
	Applied  bool
}

// Fire is one handler call made by the dispatcher.
type Fire struct {
	RunID      string
	Cycle      int64
	Seq        int64
	Expression string
	Handler    string
	Priority   int32
	Now        string
	Last       string
}

// RecordKind distinguishes writes from fires in a merged trace.
type RecordKind int

const (
	RecordWrite RecordKind = iota
	RecordFire
)

// String returns the record kind as a string.
func (k RecordKind) String() string {
	switch k {
	case RecordWrite:
		return "write"
	case RecordFire:
		return "fire"
	default:
		return "unknown"
	}
}

// Record is one entry of a run trace. Exactly one of Write and Fire is set,
// matching Kind.
type Record struct {
	Kind  RecordKind
	Cycle int64
	Seq   int64
	Write *Write
	Fire  *Fire
}
