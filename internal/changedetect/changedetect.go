// Package changedetect implements the when-changed gate: a canonical,
// deterministic serialization of a row set (after column projection) whose
// byte-identity against the previous successful dispatch decides whether
// this tick's result is new enough to send.
package changedetect

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Policy is the normalized when-changed configuration.
type Policy struct {
	// Off disables the gate entirely: every tick dispatches.
	Off bool
	// Only restricts serialization to these columns (intersected with the
	// row's own columns). Except is ignored when Only is non-empty.
	Only []string
	// Except removes these columns from the row's own columns.
	Except []string
}

// Row is one source row as a field→value mapping.
type Row map[string]interface{}

// Serialize produces the canonical, deterministic byte-serialization of
// rows after projecting each row's columns per policy: sorted keys, fixed
// number formatting, one line per row.
func Serialize(rows []Row, policy Policy) []byte {
	var buf bytes.Buffer
	for _, row := range rows {
		cols := projectColumns(row, policy)
		sort.Strings(cols)
		for i, col := range cols {
			if i > 0 {
				buf.WriteByte('\t')
			}
			buf.WriteString(col)
			buf.WriteByte('=')
			buf.WriteString(formatValue(row[col]))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func projectColumns(row Row, policy Policy) []string {
	if len(policy.Only) > 0 {
		only := make(map[string]struct{}, len(policy.Only))
		for _, c := range policy.Only {
			only[c] = struct{}{}
		}
		cols := make([]string, 0, len(row))
		for c := range row {
			if _, ok := only[c]; ok {
				cols = append(cols, c)
			}
		}
		return cols
	}

	except := make(map[string]struct{}, len(policy.Except))
	for _, c := range policy.Except {
		except[c] = struct{}{}
	}
	cols := make([]string, 0, len(row))
	for c := range row {
		if _, ok := except[c]; !ok {
			cols = append(cols, c)
		}
	}
	return cols
}

func formatValue(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	default:
		return fmt.Sprintf("%v", n)
	}
}

// ShouldDispatch decides whether rows, after the when-changed gate, should
// be dispatched given the previous serialization (nil/empty on first run).
// It always returns the freshly-computed serialization so the caller can
// latch it regardless of the dispatch decision.
func ShouldDispatch(rows []Row, policy Policy, alwaysSend bool, prevSerialization []byte) (dispatch bool, serialization []byte) {
	serialization = Serialize(rows, policy)

	if policy.Off || alwaysSend {
		return true, serialization
	}
	if prevSerialization == nil {
		return true, serialization // first run always dispatches
	}
	if !bytes.Equal(serialization, prevSerialization) {
		return true, serialization
	}
	return false, serialization
}
