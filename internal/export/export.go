// Package export serialises watch rules into flat audit tables (CSV and
// XLSX) with a fixed column order.
package export

import (
	"errors"
	"strconv"
	"time"

	"github.com/facilityops/watchpost/internal/conf"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/watch"
)

// ErrExport wraps every failure to produce an export. Nothing is written to
// the destination when it is returned.
var ErrExport = errors.New("export failed")

// TimeLayout is the timestamp format used in every column.
const TimeLayout = "2006-01-02 15:04:05"

// Header is the fixed column order.
var Header = []string{
	"布控类型",
	"目标ID",
	"目标名称",
	"目标描述",
	"布控规则",
	"布控原因",
	"开始时间",
	"结束时间",
	"状态",
	"告警次数",
	"最后位置",
	"最后出现时间",
}

// Options controls formatting.
type Options struct {
	// Location renders timestamps; nil means local time.
	Location *time.Location
	// Encoding is conf.EncodingUTF8BOM (default) or conf.EncodingGB18030.
	// XLSX output ignores it.
	Encoding string
	// Now decides the effective status of active rules; zero means time.Now.
	Now time.Time
}

func (o Options) normalize() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Encoding == "" {
		o.Encoding = conf.EncodingUTF8BOM
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// Row is one exported rule, every column already formatted.
type Row struct {
	TargetType   string
	TargetID     string
	TargetName   string
	TargetInfo   string
	RuleText     string
	Reason       string
	WindowStart  string
	WindowEnd    string
	Status       string
	AlertCount   string
	LastLocation string
	LastSeenAt   string
}

// Values returns the columns in Header order.
func (r Row) Values() []string {
	return []string{
		r.TargetType, r.TargetID, r.TargetName, r.TargetInfo,
		r.RuleText, r.Reason, r.WindowStart, r.WindowEnd,
		r.Status, r.AlertCount, r.LastLocation, r.LastSeenAt,
	}
}

func rowFromValues(v []string) Row {
	return Row{
		TargetType: v[0], TargetID: v[1], TargetName: v[2], TargetInfo: v[3],
		RuleText: v[4], Reason: v[5], WindowStart: v[6], WindowEnd: v[7],
		Status: v[8], AlertCount: v[9], LastLocation: v[10], LastSeenAt: v[11],
	}
}

// NewRow formats rule with opts. The status column shows the effective
// status, so an active rule past its window reads as expired.
func NewRow(rule *entities.WatchRule, opts Options) Row {
	opts = opts.normalize()
	return Row{
		TargetType:   rule.TargetType.Label(),
		TargetID:     rule.TargetID,
		TargetName:   rule.TargetName,
		TargetInfo:   rule.TargetInfo,
		RuleText:     rule.RuleText,
		Reason:       rule.Reason,
		WindowStart:  formatTime(rule.WindowStart, opts.Location),
		WindowEnd:    formatTime(rule.WindowEnd, opts.Location),
		Status:       watch.EffectiveStatus(rule, opts.Now).Label(),
		AlertCount:   strconv.FormatUint(rule.AlertCount, 10),
		LastLocation: rule.LastKnownLocation,
		LastSeenAt:   formatTimePtr(rule.LastSeenAt, opts.Location),
	}
}

// Rows formats every rule in order.
func Rows(rules []entities.WatchRule, opts Options) []Row {
	opts = opts.normalize()
	rows := make([]Row, len(rules))
	for i := range rules {
		rows[i] = NewRow(&rules[i], opts)
	}
	return rows
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(TimeLayout)
}

func formatTimePtr(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return formatTime(*t, loc)
}
