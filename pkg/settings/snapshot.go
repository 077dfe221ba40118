package settings

import (
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"Aide/pkg/autoreply"
	"Aide/pkg/types"
)

// Setting keys
const (
	KeyAutoReplyEnabled   = "auto_reply_enabled"
	KeyAutoReplyDelay     = "auto_reply_delay"
	KeyAutoReplyInGroup   = "auto_reply_in_group"
	KeyAutoAnswerVideo    = "auto_answer_video"
	KeyAutoAnswerDelay    = "auto_answer_delay"
	KeyMonitorEnabled     = "message_monitor_enabled"
	KeyLogMessages        = "log_messages"
	KeyTTSEnabled         = "tts_enabled"
	KeyUseWhitelist       = "use_whitelist"
	KeyWhitelist          = "whitelist"
	KeyBlacklist          = "blacklist"
	KeyReplyRules         = "reply_rules"
	KeyAnnounceURL        = "announce_url"
	KeyPollInterval       = "poll_interval_ms"
	KeyAuditRetentionDays = "audit_retention_days"
)

// ScriptFile is the optional recognizer script inside the config dir.
const ScriptFile = "recognizers.js"

// Defaults
const (
	DefaultReplyDelay         = 1000 * time.Millisecond
	DefaultAnswerDelay        = 2000 * time.Millisecond
	DefaultPollInterval       = 1200 * time.Millisecond
	DefaultAuditRetentionDays = 30
	minPollInterval           = 300 * time.Millisecond
)

// Calibrated coordinate names
const (
	CoordSearchButton = "search_button"
	CoordSearchInput  = "search_input"
	CoordPasteButton  = "paste_button"
	CoordFirstResult  = "first_result"
	CoordPlusButton   = "plus_button"
	CoordVideoCall    = "video_call"
	CoordConfirmVideo = "confirm_video"
	CoordConfirmVoice = "confirm_voice"
	CoordAnswerButton = "answer_button"
)

// CoordinateNames lists every calibratable coordinate
var CoordinateNames = []string{
	CoordSearchButton, CoordSearchInput, CoordPasteButton, CoordFirstResult,
	CoordPlusButton, CoordVideoCall, CoordConfirmVideo, CoordConfirmVoice,
	CoordAnswerButton,
}

// IsCoordinateName reports whether name is a known coordinate
func IsCoordinateName(name string) bool {
	for _, n := range CoordinateNames {
		if n == name {
			return true
		}
	}
	return false
}

// Unset is the value of a coordinate that was never calibrated
var Unset = types.Point{X: -1, Y: -1}

// Snapshot is a typed, read-only copy of the settings at one instant
type Snapshot struct {
	AutoReplyEnabled bool
	AutoReplyDelay   time.Duration
	AutoReplyInGroup bool
	AutoAnswer       bool
	AutoAnswerDelay  time.Duration
	MonitorEnabled   bool
	LogMessages      bool
	TTSEnabled       bool

	Policy      autoreply.ContactPolicy
	Rules       []autoreply.Rule
	Coordinates map[string]types.Point

	AnnounceURL        string
	PollInterval       time.Duration
	AuditRetentionDays int
}

// Coordinate returns the calibrated point for name, or Unset
func (s Snapshot) Coordinate(name string) types.Point {
	if p, ok := s.Coordinates[name]; ok {
		return p
	}
	return Unset
}

// GateConfig is the part of the snapshot the reply gate consults
func (s Snapshot) GateConfig() autoreply.GateConfig {
	return autoreply.GateConfig{
		Enabled:      s.AutoReplyEnabled,
		ReplyInGroup: s.AutoReplyInGroup,
		Policy:       s.Policy,
	}
}

func millis(v int64, def time.Duration) time.Duration {
	if v < 0 {
		return def
	}
	return time.Duration(v) * time.Millisecond
}

// Snapshot reads every setting with its default
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		AutoReplyEnabled: s.GetBool(KeyAutoReplyEnabled, false),
		AutoReplyDelay:   millis(s.GetInt(KeyAutoReplyDelay, -1), DefaultReplyDelay),
		AutoReplyInGroup: s.GetBool(KeyAutoReplyInGroup, false),
		AutoAnswer:       s.GetBool(KeyAutoAnswerVideo, false),
		AutoAnswerDelay:  millis(s.GetInt(KeyAutoAnswerDelay, -1), DefaultAnswerDelay),
		MonitorEnabled:   s.GetBool(KeyMonitorEnabled, true),
		LogMessages:      s.GetBool(KeyLogMessages, false),
		TTSEnabled:       s.GetBool(KeyTTSEnabled, true),
		Policy: autoreply.ContactPolicy{
			UseWhitelist: s.GetBool(KeyUseWhitelist, false),
			Whitelist:    s.GetList(KeyWhitelist),
			Blacklist:    s.GetList(KeyBlacklist),
		},
		Rules:              s.Rules(),
		Coordinates:        s.Coordinates(),
		AnnounceURL:        strings.TrimSpace(s.GetString(KeyAnnounceURL, "")),
		PollInterval:       millis(s.GetInt(KeyPollInterval, -1), DefaultPollInterval),
		AuditRetentionDays: int(s.GetInt(KeyAuditRetentionDays, DefaultAuditRetentionDays)),
	}
	if snap.PollInterval < minPollInterval {
		snap.PollInterval = minPollInterval
	}
	return snap
}

// ========================================
// Rules
// ========================================

// Rules returns the configured reply rules. A missing key yields the
// default rules; a corrupt value yields none.
func (s *Store) Rules() []autoreply.Rule {
	raw, ok := s.Get(KeyReplyRules)
	if !ok {
		return autoreply.DefaultRules()
	}
	r := gjson.ParseBytes(raw)
	data := []byte(r.Raw)
	// the value may be the array itself or a string holding it
	if r.Type == gjson.String {
		data = []byte(r.String())
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		s.log("Ignoring corrupt %s value", KeyReplyRules)
		return []autoreply.Rule{}
	}
	rules := autoreply.ParseRules(data)
	if rules == nil {
		rules = []autoreply.Rule{}
	}
	return rules
}

// SetRules replaces the configured rules
func (s *Store) SetRules(rules []autoreply.Rule) error {
	if rules == nil {
		rules = []autoreply.Rule{}
	}
	return s.Set(KeyReplyRules, rules)
}

// ResetRules restores the default rules
func (s *Store) ResetRules() error {
	return s.SetRules(autoreply.DefaultRules())
}

// ========================================
// Coordinates
// ========================================

// Coordinates returns every calibrated point
func (s *Store) Coordinates() map[string]types.Point {
	out := make(map[string]types.Point)
	for _, name := range CoordinateNames {
		p := types.Point{
			X: int(s.GetInt(name+"_x", -1)),
			Y: int(s.GetInt(name+"_y", -1)),
		}
		if p.Valid() {
			out[name] = p
		}
	}
	return out
}

// SetCoordinate calibrates name
func (s *Store) SetCoordinate(name string, p types.Point) error {
	s.mu.Lock()
	s.values[name+"_x"] = []byte(strconv.Itoa(p.X))
	s.values[name+"_y"] = []byte(strconv.Itoa(p.Y))
	s.mu.Unlock()
	return s.Save()
}

// ClearCoordinates forgets the named points, or all when none are given
func (s *Store) ClearCoordinates(names ...string) error {
	if len(names) == 0 {
		names = CoordinateNames
	}
	s.mu.Lock()
	for _, name := range names {
		delete(s.values, name+"_x")
		delete(s.values, name+"_y")
	}
	s.mu.Unlock()
	return s.Save()
}
