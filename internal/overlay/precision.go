package overlay

import (
	"encoding/json"
	"math"
	"os"

	"github.com/rotisserie/eris"
)

// RoundSig rounds num to the given number of significant digits.
func RoundSig(num float64, digits int) float64 {
	if num == 0 || math.IsNaN(num) || math.IsInf(num, 0) {
		return num
	}
	power := float64(digits) - math.Floor(math.Log10(math.Abs(num))) - 1
	factor := math.Pow(10, power)
	return math.Round(num*factor) / factor
}

// Reduce walks a decoded JSON document and rounds every number to the
// given significant digits. Strings, bools, and nulls pass through.
func Reduce(v any, digits int) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = Reduce(e, digits)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = Reduce(e, digits)
		}
		return t
	case float64:
		return RoundSig(t, digits)
	default:
		return v
	}
}

// ReduceFile rewrites a JSON file in place with all numbers rounded to the
// given significant digits, compacting the output.
func ReduceFile(path string, digits int) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "overlay: read %s", path)
	}
	var doc any
	if err := json.Unmarshal(buf, &doc); err != nil {
		return eris.Wrapf(err, "overlay: parse %s", path)
	}
	out, err := json.Marshal(Reduce(doc, digits))
	if err != nil {
		return eris.Wrapf(err, "overlay: marshal %s", path)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return eris.Wrapf(err, "overlay: write %s", path)
	}
	return nil
}
