package postprocess

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atikulmunna/memlens/internal/model"
)

// Placeholders understood by LeakCompactor templates.
const (
	PlaceholderLeakedBytes = "${leakedBytes}"
	PlaceholderType        = "${type}"
	PlaceholderFunction    = "${function}"
	PlaceholderIP          = "${ip}"
)

const unknown = "unknown"

// LeakCompactor merges leaks of the same type anchored at the same
// position into one aggregate carrying the summed byte count. The
// aggregate's message is rendered from a template and its stack trace is
// cleared. A leak that is alone of its type is left untouched.
type LeakCompactor struct {
	template string
}

func NewLeakCompactor(template string) *LeakCompactor {
	return &LeakCompactor{template: template}
}

// aggregate tracks one merged leak and the frame its message is rendered from.
type aggregate struct {
	index  int
	leak   *model.Leak
	anchor *model.Frame
	merged bool
}

func (c *LeakCompactor) Process(groups *model.Groups) *model.Groups {
	out := model.NewGroups()

	for _, pos := range groups.Positions() {
		var (
			compact []model.Diagnostic
			byType  = make(map[string]*aggregate)
		)

		for _, d := range groups.Get(pos) {
			leak, ok := d.(*model.Leak)
			if !ok {
				compact = append(compact, d)
				continue
			}

			agg, seen := byType[leak.Type]
			if !seen {
				agg = &aggregate{index: len(compact), leak: leak}
				if len(leak.StackTrace) > 0 {
					first := leak.StackTrace[0]
					agg.anchor = &first
				}
				byType[leak.Type] = agg
				compact = append(compact, d)
				continue
			}

			if !agg.merged {
				// Copy so the parsed diagnostic is never modified.
				clone := *agg.leak
				agg.leak = &clone
				agg.merged = true
				compact[agg.index] = agg.leak
			}
			agg.leak.LeakedBytes += leak.LeakedBytes
			agg.leak.Msg = c.render(agg)
			agg.leak.StackTrace = nil
		}

		out.Set(pos, compact)
	}

	return out
}

func (c *LeakCompactor) render(agg *aggregate) string {
	function, ip := unknown, unknown
	if agg.anchor != nil {
		if agg.anchor.Function != "" {
			function = agg.anchor.Function
		}
		ip = fmt.Sprintf("0x%x", agg.anchor.IP)
	}

	r := strings.NewReplacer(
		PlaceholderLeakedBytes, strconv.FormatInt(agg.leak.LeakedBytes, 10),
		PlaceholderType, agg.leak.Type,
		PlaceholderFunction, function,
		PlaceholderIP, ip,
	)
	return r.Replace(c.template)
}
