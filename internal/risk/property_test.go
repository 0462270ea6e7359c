package risk

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func labelsPayload(level int, black, white bool, detail string) json.RawMessage {
	list := func(on bool) string {
		if on {
			return `"[\"label\"]"`
		}
		return `"[]"`
	}
	detailJSON, _ := json.Marshal(detail)
	return json.RawMessage(fmt.Sprintf(
		`{"risk_level":%d,"black_labels":%s,"white_labels":%s,"risk_detail_simple":[{"value":%s}]}`,
		level, list(black), list(white), detailJSON))
}

func TestProperty_OverallTitleThresholds(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("title follows level bands", prop.ForAll(
		func(n int) bool {
			title, _ := OverallTitle(Level(n))
			switch {
			case n < 0:
				return title == TitleUnknown
			case n >= 4:
				return title == TitleHigh
			case n >= 2:
				return title == TitleMedium
			default:
				return title == TitleLow
			}
		},
		gen.IntRange(-5, 20),
	))

	properties.Property("url title only for medium and above", prop.ForAll(
		func(n int) bool {
			title := URLTitle(Level(n))
			if n < 2 {
				return title == ""
			}
			return title != ""
		},
		gen.IntRange(-5, 20),
	))

	properties.TestingRun(t)
}

func TestProperty_Normalize(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("trace id is carried through", prop.ForAll(
		func(idx int, traceID string, junk string) bool {
			r := Normalize(BusinessTypes[idx], json.RawMessage(junk), traceID)
			return r.TraceID == traceID
		},
		gen.IntRange(0, len(BusinessTypes)-1),
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.Property("normalization is deterministic", prop.ForAll(
		func(idx, level int, black, white bool, detail string) bool {
			data := labelsPayload(level, black, white, detail)
			a := Normalize(BusinessTypes[idx], data, "trace")
			b := Normalize(BusinessTypes[idx], data, "trace")
			return reflect.DeepEqual(a, b)
		},
		gen.IntRange(0, len(BusinessTypes)-1),
		gen.IntRange(-2, 6),
		gen.Bool(),
		gen.Bool(),
		gen.AlphaString(),
	))

	properties.Property("blacklist always wins", prop.ForAll(
		func(level int, white bool, detail string) bool {
			r := Normalize(NativeTransfer, labelsPayload(level, true, white, detail), "t")
			return r.TransactionRiskDetail == DetailBlacklisted
		},
		gen.IntRange(0, 5),
		gen.Bool(),
		gen.AlphaString(),
	))

	properties.Property("titles agree with levels", prop.ForAll(
		func(level int, black, white bool) bool {
			r := Normalize(NativeTransfer, labelsPayload(level, black, white, "d"), "t")
			title, detail := OverallTitle(r.OverallRisk)
			return r.OverallRiskTitle == title && r.OverallRiskDetail == detail &&
				r.URLRiskTitle == URLTitle(r.URLRisk)
		},
		gen.IntRange(-2, 6),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
