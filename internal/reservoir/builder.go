package reservoir

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/rulecore/internal/status"
)

// Row is one line of a status table.
//
// Kind is one of BOOL, UNSIGNED, UNSIGNED_<w>, SIGNED, SIGNED_<w>, FLOAT.
// An empty Value registers the zero value of the kind.
type Row struct {
	Name  string `yaml:"name" json:"name"`
	Kind  string `yaml:"kind" json:"kind"`
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// ParseFormat converts a table kind into a status kind and bit width.
func ParseFormat(kind string) (status.Kind, uint8, error) {
	name, widthText, hasWidth := strings.Cut(strings.ToUpper(strings.TrimSpace(kind)), "_")
	k, ok := status.ParseKind(name)
	if !ok || k == status.KindEmpty {
		return status.KindEmpty, 0, fmt.Errorf("unknown status kind %q", kind)
	}

	switch k {
	case status.KindBool:
		if hasWidth {
			return status.KindEmpty, 0, fmt.Errorf("status kind %q takes no width", kind)
		}
		return k, 1, nil
	case status.KindFloat:
		if hasWidth {
			return status.KindEmpty, 0, fmt.Errorf("status kind %q takes no width", kind)
		}
		return k, BlockWidth, nil
	}

	width := uint8(MaxUnsignedWidth)
	maxWidth := uint8(MaxUnsignedWidth)
	if k == status.KindSigned {
		width, maxWidth = MaxSignedWidth, MaxSignedWidth
	}
	if hasWidth {
		w, err := strconv.ParseUint(widthText, 10, 8)
		if err != nil || w < minIntegerWidth || w > uint64(maxWidth) {
			return status.KindEmpty, 0, fmt.Errorf("invalid width in status kind %q", kind)
		}
		width = uint8(w)
	}
	return k, width, nil
}

// BuildStatuses registers every row of a status table into chunkKey.
//
// Rows that fail are skipped; their errors are joined into the returned
// error. Returns the number of rows registered.
func BuildStatuses(r *Reservoir, chunkKey status.Key, rows []Row) (int, error) {
	var errs []error
	registered := 0
	for i, row := range rows {
		if err := buildStatus(r, chunkKey, row); err != nil {
			errs = append(errs, fmt.Errorf("row %d (%s): %w", i, row.Name, err))
			continue
		}
		registered++
	}
	return registered, errors.Join(errs...)
}

func buildStatus(r *Reservoir, chunkKey status.Key, row Row) error {
	if row.Name == "" {
		return errors.New("name is required")
	}
	kind, width, err := ParseFormat(row.Kind)
	if err != nil {
		return err
	}

	v := zeroValue(kind)
	if row.Value != "" {
		v = status.Make(row.Value, kind)
		if v.IsEmpty() {
			return fmt.Errorf("value %q is not a %s", row.Value, kind)
		}
	}

	if !r.RegisterStatusWidth(chunkKey, status.MakeKey(row.Name), v, width) {
		return fmt.Errorf("cannot register %s value %s (duplicate or out of range)", row.Kind, v)
	}
	return nil
}

func zeroValue(kind status.Kind) status.Value {
	switch kind {
	case status.KindBool:
		return status.Bool(false)
	case status.KindSigned:
		return status.Signed(0)
	case status.KindFloat:
		return status.Float(0)
	default:
		return status.Unsigned(0)
	}
}
