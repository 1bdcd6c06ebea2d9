package sms

import (
	"fmt"
	"strings"
	"time"
)

// DateRange selects how a profile asks the panel for a time window
type DateRange string

const (
	// RangeToday asks for today 00:00:00 to 23:59:59 in the panel location
	RangeToday DateRange = "today"
	// RangeSince asks for a fixed start up to now
	RangeSince DateRange = "since"
)

// Profile describes one panel layout: where each field sits in a row, how many
// columns the DataTables request declares, and the default request window
type Profile struct {
	Name string

	// Columns is the iColumns value the panel grid was built with; 0 omits the grid params
	Columns int

	TS      int
	Route   int
	Number  int
	Service int
	Message int
	Client  int // -1 when the layout has no client column

	PageSize     int
	DateRange    DateRange
	NeedsSessKey bool

	// Extra carries static filter params the grid posts (fg, frange and so on)
	Extra map[string]string
}

var (
	// Client is the 7 column client report layout
	Client = Profile{
		Name: "client", Columns: 7,
		TS: 0, Route: 1, Number: 2, Service: 3, Message: 4, Client: -1,
		PageSize: 25, DateRange: RangeToday,
		Extra: map[string]string{
			"frange": "", "fnum": "", "fcli": "", "fgdate": "", "fgmonth": "",
			"fgrange": "", "fgnumber": "", "fgcli": "", "fg": "0",
		},
	}

	// Agent is the 9 column agent report layout with a client column before the message
	Agent = Profile{
		Name: "agent", Columns: 9,
		TS: 0, Route: 1, Number: 2, Service: 3, Client: 4, Message: 5,
		PageSize: 25, DateRange: RangeToday,
		Extra: map[string]string{
			"frange": "", "fclient": "", "fnum": "", "fcli": "", "fgdate": "", "fgmonth": "",
			"fgrange": "", "fgclient": "", "fgnumber": "", "fgcli": "", "fg": "0",
		},
	}

	// NumberPanel reads the client columns but posts a bare request: sesskey, a fixed
	// start date and no grid column declarations
	NumberPanel = Profile{
		Name: "numberpanel",
		TS:   0, Route: 1, Number: 2, Service: 3, Message: 4, Client: -1,
		PageSize: 3, DateRange: RangeSince, NeedsSessKey: true,
	}
)

// Profiles lists the known layouts by name
var Profiles = map[string]Profile{
	Client.Name:      Client,
	Agent.Name:       Agent,
	NumberPanel.Name: NumberPanel,
}

// ProfileByName returns the named layout
func ProfileByName(name string) (Profile, error) {
	p, ok := Profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown panel profile %q", name)
	}
	return p, nil
}

// MinFields is the shortest row this layout can read a record from, never below 5
func (p Profile) MinFields() int {
	n := 5
	for _, i := range []int{p.TS, p.Route, p.Number, p.Service, p.Message, p.Client} {
		n = max(n, i+1)
	}
	return n
}

// Window returns the fdate1/fdate2 pair for a request made at now
// since is only read for RangeSince and falls back to the start of today when blank
func (p Profile) Window(now time.Time, since string) (from, to string) {
	const layout = "2006-01-02 15:04:05"
	day := now.Format("2006-01-02")
	switch p.DateRange {
	case RangeSince:
		from = strings.TrimSpace(since)
		if from == "" {
			from = day + " 00:00:00"
		}
		return from, now.Format(layout)
	default:
		return day + " 00:00:00", day + " 23:59:59"
	}
}
