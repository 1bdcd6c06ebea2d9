package panel

import (
	"strconv"
	"strings"
	"time"

	"otprelay/internal/core/sms"
)

// Params builds the DataTables query a panel grid sends for profile p at now
func Params(p sms.Profile, now time.Time, o Options, pageSize int) map[string]string {
	from, to := p.Window(now, o.Since)
	q := map[string]string{
		"fdate1":         from,
		"fdate2":         to,
		"sEcho":          "1",
		"iDisplayStart":  "0",
		"iDisplayLength": strconv.Itoa(pageSize),
		"_":              strconv.FormatInt(now.UnixMilli(), 10),
	}
	for k, v := range p.Extra {
		q[k] = v
	}
	if p.Columns > 0 {
		q["iColumns"] = strconv.Itoa(p.Columns)
		q["sColumns"] = strings.Repeat(",", p.Columns-1)
		for i := 0; i < p.Columns; i++ {
			n := strconv.Itoa(i)
			q["mDataProp_"+n] = n
			q["sSearch_"+n] = ""
			q["bRegex_"+n] = "false"
			q["bSearchable_"+n] = "true"
			q["bSortable_"+n] = "true"
		}
		q["sSearch"] = ""
		q["bRegex"] = "false"
		q["iSortCol_0"] = "0"
		q["sSortDir_0"] = "desc"
		q["iSortingCols"] = "1"
	}
	if o.SessKey != "" {
		q["sesskey"] = o.SessKey
	}
	return q
}
