package types

// Device represents an Android device
type Device struct {
	ID      string `json:"id"`
	Serial  string `json:"serial"`
	State   string `json:"state"`
	Model   string `json:"model"`
	Product string `json:"product,omitempty"`
	Type    string `json:"type"` // "wired" or "wireless"
}

// Point is a screen coordinate in device pixels
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Valid reports whether the point was calibrated (negative means unset)
func (p Point) Valid() bool {
	return p.X >= 0 && p.Y >= 0
}

// Fraction is a position relative to the screen size
type Fraction struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// At resolves the fraction on a w x h screen
func (f Fraction) At(w, h int) Point {
	return Point{X: int(float64(w) * f.X), Y: int(float64(h) * f.Y)}
}

// AttemptQuery defines parameters for querying recorded action attempts
type AttemptQuery struct {
	Kinds     []string `json:"kinds,omitempty"`
	Outcomes  []string `json:"outcomes,omitempty"`
	StartTime int64    `json:"startTime,omitempty"`
	EndTime   int64    `json:"endTime,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Offset    int      `json:"offset,omitempty"`
}

// AttemptRecord is one persisted action attempt. Only metadata is kept,
// never message text or contact names.
type AttemptRecord struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Outcome    string   `json:"outcome"`
	Winner     string   `json:"winner,omitempty"`
	Tried      []string `json:"tried,omitempty"`
	RuleID     string   `json:"ruleId,omitempty"`
	Source     string   `json:"source,omitempty"`
	StartedAt  int64    `json:"startedAt"`
	DurationMs int64    `json:"durationMs"`
}

// AttemptQueryResult contains query results
type AttemptQueryResult struct {
	Attempts []AttemptRecord `json:"attempts"`
	Total    int             `json:"total"`
	HasMore  bool            `json:"hasMore"`
}

// MessageView is an extracted message as shown to host surfaces
type MessageView struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Sender      string `json:"sender,omitempty"`
	ChatName    string `json:"chatName,omitempty"`
	IsGroupChat bool   `json:"isGroupChat"`
	IsSelf      bool   `json:"isSelf"`
	Type        string `json:"type"`
	Timestamp   int64  `json:"timestamp"`
}

// EngineStatus is a point-in-time view of the automation engine
type EngineStatus struct {
	Running          bool   `json:"running"`
	CallState        string `json:"callState"`
	ActiveCaller     string `json:"activeCaller,omitempty"`
	DeferredSignals  int    `json:"deferredSignals"`
	PendingTimers    int    `json:"pendingTimers"`
	ReplyInFlight    bool   `json:"replyInFlight"`
	AnswerInFlight   bool   `json:"answerInFlight"`
	MessagesSeen     int    `json:"messagesSeen"`
	HistoryLen       int    `json:"historyLen"`
	DroppedEvents    int64  `json:"droppedEvents"`
	LastWindowClass  string `json:"lastWindowClass,omitempty"`
	AutoReplyEnabled bool   `json:"autoReplyEnabled"`
	AutoAnswer       bool   `json:"autoAnswer"`
}

// ReplyPreview is what the reply rules would answer to a message
type ReplyPreview struct {
	Matched bool   `json:"matched"`
	RuleID  string `json:"ruleId,omitempty"`
	Reply   string `json:"reply,omitempty"`
	Skip    string `json:"skip,omitempty"`
}
