package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is implemented by every wire message. Encode produces the full
// line (type tag plus pipe-separated fields, no trailing newline); decode
// fills the struct from the already-split field list.
type Message interface {
	Type() int
	Encode() (string, error)
	decode(fields []string) error
}

// Message type tags. Tags are part of the wire format and must never be
// renumbered.
const (
	TypeVersion                   = 1000
	TypeRejectConnection          = 1001
	TypeStatusMessage             = 1002
	TypeServerPing                = 1003
	TypeImARobot                  = 1004
	TypeChannels                  = 1005
	TypeJoinChannel               = 1006
	TypeLeaveChannel              = 1007
	TypeDeleteChannel             = 1008
	TypeChannelMembers            = 1009
	TypeTextMsg                   = 1010
	TypeGames                     = 1011
	TypeNewGame                   = 1012
	TypeNewGameWithOptions        = 1013
	TypeNewGameWithOptionsRequest = 1014
	TypeJoinGame                  = 1015
	TypeLeaveGame                 = 1016
	TypeDeleteGame                = 1017
	TypeGameMembers               = 1018
	TypeGameState                 = 1019
	TypeSitDown                   = 1020
	TypeSetSeatLock               = 1021
	TypeTurn                      = 1022
	TypeEndTurn                   = 1023
	TypeDiscardRequest            = 1024
	TypeDiscard                   = 1025
	TypeResetBoardRequest         = 1026
	TypeResetBoardVoteRequest     = 1027
	TypeResetBoardVote            = 1028
	TypeResetBoardAuth            = 1029
	TypeResetBoardReject          = 1030
	TypeRobotJoinGameRequest      = 1031
	TypeRobotDismissRequest       = 1032
	TypeForcedEndTurn             = 1033
	TypeBroadcastTextMsg          = 1034
	TypeStartGame                 = 1035
)

// Client version numbers, encoded as in "1.2.02" -> 1202.
const (
	// VersionFallback is assumed for a client that never reports a version
	// before the guess timer fires.
	VersionFallback = 1100

	// VersionUnjoinableMarker is the oldest version that understands the
	// unjoinable-game marker in game announcements. Older clients are told
	// nothing about games they cannot join.
	VersionUnjoinableMarker = 1107

	// VersionGameOptions is the oldest version that understands
	// option-bearing game announcements and the reset-vote protocol.
	VersionGameOptions = 1200

	// VersionServerRename is the oldest version that can apply a
	// server-driven nickname case correction.
	VersionServerRename = 1200

	// VersionLatest is the version this server itself speaks.
	VersionLatest = 1202
)

// Status values carried by StatusMessage.
const (
	StatusOK                  = 0
	StatusNameInUse           = 1 // Detail: seconds to wait before reclaim
	StatusNameNotAllowed      = 2
	StatusVersionTooOld       = 3 // Detail: minimum required version
	StatusPasswordRequired    = 4
	StatusPasswordWrong       = 5
	StatusNameNeedsCaseChange = 6 // Text: canonical nickname
	StatusQuotaExceeded       = 7
	StatusGameExists          = 8
	StatusOptionUnknown       = 9 // Detail: minimum version when option too new
	StatusActionFailed        = 10
)

// ResourceTypes is the number of distinct resource kinds a hand can hold.
const ResourceTypes = 5

// ResourceSet is a per-type resource count vector.
type ResourceSet [ResourceTypes]int

// Total returns the number of resources in the set.
func (rs ResourceSet) Total() int {
	n := 0
	for _, c := range rs {
		n += c
	}
	return n
}

func (rs ResourceSet) encode() string {
	parts := make([]string, ResourceTypes)
	for i, c := range rs {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ListSep)
}

func decodeResourceSet(s string) (ResourceSet, error) {
	var rs ResourceSet
	parts := strings.Split(s, ListSep)
	if len(parts) != ResourceTypes {
		return rs, ErrBadFieldValue
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return rs, ErrBadFieldValue
		}
		rs[i] = n
	}
	return rs, nil
}

// GameOption is a single key=value game option.
type GameOption struct {
	Key   string
	Value string
}

func encodeOptions(opts []GameOption) (string, error) {
	if len(opts) == 0 {
		return "-", nil
	}
	parts := make([]string, len(opts))
	for i, o := range opts {
		if !IsSingleLineAndSafe(o.Key) || strings.Contains(o.Key, "=") {
			return "", ErrUnsafeField
		}
		if !IsSingleLineAndSafe(o.Value) || strings.Contains(o.Value, "=") {
			return "", ErrUnsafeField
		}
		parts[i] = o.Key + "=" + o.Value
	}
	return strings.Join(parts, ListSep), nil
}

func decodeOptions(s string) ([]GameOption, error) {
	if s == "-" {
		return nil, nil
	}
	parts := strings.Split(s, ListSep)
	opts := make([]GameOption, 0, len(parts))
	for _, p := range parts {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, ErrBadFieldValue
		}
		opts = append(opts, GameOption{Key: k, Value: v})
	}
	return opts, nil
}

func encodeLine(typeID int, fields ...string) string {
	if len(fields) == 0 {
		return strconv.Itoa(typeID)
	}
	return strconv.Itoa(typeID) + FieldSep + strings.Join(fields, FieldSep)
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decodeBool(s string) (bool, error) {
	switch s {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, ErrBadFieldValue
}

// optionalField encodes an empty string as "-" so the field is never blank
// on the wire. Values that are exactly "-" are not representable, which is
// acceptable for nicknames and passwords (both reject "-" at validation).
func optionalField(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func decodeOptional(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

// Parse decodes a single wire line into its message struct.
func Parse(line string) (Message, error) {
	if line == "" {
		return nil, ErrEmptyLine
	}
	if len(line) > MaxLineLength {
		return nil, ErrLineTooLong
	}
	fields := strings.Split(line, FieldSep)
	typeID, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad type tag %q", ErrBadFieldValue, fields[0])
	}

	var msg Message
	switch typeID {
	case TypeVersion:
		msg = &Version{}
	case TypeRejectConnection:
		msg = &RejectConnection{}
	case TypeStatusMessage:
		msg = &StatusMessage{}
	case TypeServerPing:
		msg = &ServerPing{}
	case TypeImARobot:
		msg = &ImARobot{}
	case TypeChannels:
		msg = &Channels{}
	case TypeJoinChannel:
		msg = &JoinChannel{}
	case TypeLeaveChannel:
		msg = &LeaveChannel{}
	case TypeDeleteChannel:
		msg = &DeleteChannel{}
	case TypeChannelMembers:
		msg = &ChannelMembers{}
	case TypeTextMsg:
		msg = &TextMsg{}
	case TypeGames:
		msg = &Games{}
	case TypeNewGame:
		msg = &NewGame{}
	case TypeNewGameWithOptions:
		msg = &NewGameWithOptions{}
	case TypeNewGameWithOptionsRequest:
		msg = &NewGameWithOptionsRequest{}
	case TypeJoinGame:
		msg = &JoinGame{}
	case TypeLeaveGame:
		msg = &LeaveGame{}
	case TypeDeleteGame:
		msg = &DeleteGame{}
	case TypeGameMembers:
		msg = &GameMembers{}
	case TypeGameState:
		msg = &GameState{}
	case TypeSitDown:
		msg = &SitDown{}
	case TypeSetSeatLock:
		msg = &SetSeatLock{}
	case TypeTurn:
		msg = &Turn{}
	case TypeEndTurn:
		msg = &EndTurn{}
	case TypeDiscardRequest:
		msg = &DiscardRequest{}
	case TypeDiscard:
		msg = &Discard{}
	case TypeResetBoardRequest:
		msg = &ResetBoardRequest{}
	case TypeResetBoardVoteRequest:
		msg = &ResetBoardVoteRequest{}
	case TypeResetBoardVote:
		msg = &ResetBoardVote{}
	case TypeResetBoardAuth:
		msg = &ResetBoardAuth{}
	case TypeResetBoardReject:
		msg = &ResetBoardReject{}
	case TypeRobotJoinGameRequest:
		msg = &RobotJoinGameRequest{}
	case TypeRobotDismissRequest:
		msg = &RobotDismissRequest{}
	case TypeForcedEndTurn:
		msg = &ForcedEndTurn{}
	case TypeBroadcastTextMsg:
		msg = &BroadcastTextMsg{}
	case TypeStartGame:
		msg = &StartGame{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typeID)
	}

	if err := msg.decode(fields[1:]); err != nil {
		return nil, fmt.Errorf("type %d: %w", typeID, err)
	}
	return msg, nil
}

// ---------------------------------------------------------------------------
// Connection-level messages
// ---------------------------------------------------------------------------

// Version reports a client's protocol version. Sent by the client shortly
// after connecting; the server assumes VersionFallback if it never arrives.
type Version struct {
	Vers  int    // e.g. 1202 for "1.2.02"
	Build string // client build identifier, freeform
}

func (m *Version) Type() int { return TypeVersion }

func (m *Version) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Build) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeVersion, strconv.Itoa(m.Vers), m.Build), nil
}

func (m *Version) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	v, err := strconv.Atoi(fields[0])
	if err != nil || v <= 0 {
		return ErrBadFieldValue
	}
	m.Vers = v
	m.Build = fields[1]
	return nil
}

// RejectConnection tells a client it is being dropped, with a reason.
type RejectConnection struct {
	Reason string
}

func (m *RejectConnection) Type() int { return TypeRejectConnection }

func (m *RejectConnection) Encode() (string, error) {
	if !IsSafeText(m.Reason) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeRejectConnection, m.Reason), nil
}

func (m *RejectConnection) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Reason = fields[0]
	return nil
}

// StatusMessage reports the outcome of a request: a machine-readable status,
// an optional numeric detail (wait seconds, minimum version), and human text.
type StatusMessage struct {
	Status int
	Detail int
	Text   string
}

func (m *StatusMessage) Type() int { return TypeStatusMessage }

func (m *StatusMessage) Encode() (string, error) {
	if !IsSafeText(m.Text) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeStatusMessage, strconv.Itoa(m.Status), strconv.Itoa(m.Detail), m.Text), nil
}

func (m *StatusMessage) decode(fields []string) error {
	if len(fields) != 3 {
		return ErrBadFieldCount
	}
	status, err := strconv.Atoi(fields[0])
	if err != nil || status < 0 {
		return ErrBadFieldValue
	}
	detail, err := strconv.Atoi(fields[1])
	if err != nil || detail < 0 {
		return ErrBadFieldValue
	}
	m.Status = status
	m.Detail = detail
	m.Text = fields[2]
	return nil
}

// ServerPing is the liveness probe. The client echoes it back; the interval
// tells the client how often to expect the next one.
type ServerPing struct {
	IntervalSeconds int
}

func (m *ServerPing) Type() int { return TypeServerPing }

func (m *ServerPing) Encode() (string, error) {
	return encodeLine(TypeServerPing, strconv.Itoa(m.IntervalSeconds)), nil
}

func (m *ServerPing) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return ErrBadFieldValue
	}
	m.IntervalSeconds = n
	return nil
}

// ImARobot identifies a connection as an AI client. The cookie must match
// the server's configured robot secret.
type ImARobot struct {
	Nickname string
	Cookie   string
	Class    string // robot brain class identifier
}

func (m *ImARobot) Type() int { return TypeImARobot }

func (m *ImARobot) Encode() (string, error) {
	for _, f := range []string{m.Nickname, m.Cookie, m.Class} {
		if !IsSingleLineAndSafe(f) {
			return "", ErrUnsafeField
		}
	}
	return encodeLine(TypeImARobot, m.Nickname, m.Cookie, m.Class), nil
}

func (m *ImARobot) decode(fields []string) error {
	if len(fields) != 3 {
		return ErrBadFieldCount
	}
	m.Nickname = fields[0]
	m.Cookie = fields[1]
	m.Class = fields[2]
	return nil
}

// BroadcastTextMsg is a server-wide announcement, delivered to everyone.
type BroadcastTextMsg struct {
	Text string
}

func (m *BroadcastTextMsg) Type() int { return TypeBroadcastTextMsg }

func (m *BroadcastTextMsg) Encode() (string, error) {
	if !IsSafeText(m.Text) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeBroadcastTextMsg, m.Text), nil
}

func (m *BroadcastTextMsg) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Text = fields[0]
	return nil
}

// ---------------------------------------------------------------------------
// Channel messages
// ---------------------------------------------------------------------------

// Channels lists all chat channels, sent on successful authentication.
type Channels struct {
	Names []string
}

func (m *Channels) Type() int { return TypeChannels }

func (m *Channels) Encode() (string, error) {
	for _, n := range m.Names {
		if !IsSingleLineAndSafe(n) {
			return "", ErrUnsafeField
		}
	}
	if len(m.Names) == 0 {
		return encodeLine(TypeChannels, "-"), nil
	}
	return encodeLine(TypeChannels, strings.Join(m.Names, ListSep)), nil
}

func (m *Channels) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	if fields[0] == "-" {
		m.Names = nil
		return nil
	}
	m.Names = strings.Split(fields[0], ListSep)
	return nil
}

// JoinChannel is both the client's join request (with optional password and
// its version of record) and the server's announcement of a new member.
type JoinChannel struct {
	Nickname string
	Password string // "-" on the wire when empty
	Channel  string
}

func (m *JoinChannel) Type() int { return TypeJoinChannel }

func (m *JoinChannel) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Nickname) || !IsSingleLineAndSafe(m.Channel) {
		return "", ErrUnsafeField
	}
	if m.Password != "" && !IsSingleLineAndSafe(m.Password) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeJoinChannel, m.Nickname, optionalField(m.Password), m.Channel), nil
}

func (m *JoinChannel) decode(fields []string) error {
	if len(fields) != 3 {
		return ErrBadFieldCount
	}
	m.Nickname = fields[0]
	m.Password = decodeOptional(fields[1])
	m.Channel = fields[2]
	return nil
}

// LeaveChannel announces or requests departure from a channel.
type LeaveChannel struct {
	Nickname string
	Channel  string
}

func (m *LeaveChannel) Type() int { return TypeLeaveChannel }

func (m *LeaveChannel) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Nickname) || !IsSingleLineAndSafe(m.Channel) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeLeaveChannel, m.Nickname, m.Channel), nil
}

func (m *LeaveChannel) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	m.Nickname = fields[0]
	m.Channel = fields[1]
	return nil
}

// DeleteChannel tells clients a channel no longer exists.
type DeleteChannel struct {
	Channel string
}

func (m *DeleteChannel) Type() int { return TypeDeleteChannel }

func (m *DeleteChannel) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Channel) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeDeleteChannel, m.Channel), nil
}

func (m *DeleteChannel) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Channel = fields[0]
	return nil
}

// ChannelMembers lists current members, sent to a joining client.
type ChannelMembers struct {
	Channel string
	Members []string
}

func (m *ChannelMembers) Type() int { return TypeChannelMembers }

func (m *ChannelMembers) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Channel) {
		return "", ErrUnsafeField
	}
	for _, n := range m.Members {
		if !IsSingleLineAndSafe(n) {
			return "", ErrUnsafeField
		}
	}
	members := "-"
	if len(m.Members) > 0 {
		members = strings.Join(m.Members, ListSep)
	}
	return encodeLine(TypeChannelMembers, m.Channel, members), nil
}

func (m *ChannelMembers) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	m.Channel = fields[0]
	if fields[1] == "-" {
		m.Members = nil
	} else {
		m.Members = strings.Split(fields[1], ListSep)
	}
	return nil
}

// TextMsg is chat text within a channel or game room.
type TextMsg struct {
	Room     string
	Nickname string
	Text     string
}

func (m *TextMsg) Type() int { return TypeTextMsg }

func (m *TextMsg) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Room) || !IsSingleLineAndSafe(m.Nickname) {
		return "", ErrUnsafeField
	}
	if !IsSafeText(m.Text) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeTextMsg, m.Room, m.Nickname, m.Text), nil
}

func (m *TextMsg) decode(fields []string) error {
	if len(fields) != 3 {
		return ErrBadFieldCount
	}
	m.Room = fields[0]
	m.Nickname = fields[1]
	m.Text = fields[2]
	return nil
}

// ---------------------------------------------------------------------------
// Game lobby messages
// ---------------------------------------------------------------------------

// GameEntry is one game in a Games listing. Joinable is false for games the
// receiving client's version cannot join (marker case).
type GameEntry struct {
	Name     string
	Joinable bool
}

// Games lists current games, tailored per receiving client version.
type Games struct {
	Entries []GameEntry
}

func (m *Games) Type() int { return TypeGames }

func (m *Games) Encode() (string, error) {
	if len(m.Entries) == 0 {
		return encodeLine(TypeGames, "-"), nil
	}
	parts := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		if !IsSingleLineAndSafe(e.Name) || strings.Contains(e.Name, "=") {
			return "", ErrUnsafeField
		}
		parts[i] = e.Name + "=" + encodeBool(e.Joinable)
	}
	return encodeLine(TypeGames, strings.Join(parts, ListSep)), nil
}

func (m *Games) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	if fields[0] == "-" {
		m.Entries = nil
		return nil
	}
	parts := strings.Split(fields[0], ListSep)
	entries := make([]GameEntry, 0, len(parts))
	for _, p := range parts {
		name, flag, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return ErrBadFieldValue
		}
		joinable, err := decodeBool(flag)
		if err != nil {
			return err
		}
		entries = append(entries, GameEntry{Name: name, Joinable: joinable})
	}
	m.Entries = entries
	return nil
}

// NewGame announces a game to clients too old for option-bearing
// announcements. Joinable=false is the bare unjoinable marker.
type NewGame struct {
	Name     string
	Joinable bool
}

func (m *NewGame) Type() int { return TypeNewGame }

func (m *NewGame) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Name) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeNewGame, m.Name, encodeBool(m.Joinable)), nil
}

func (m *NewGame) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	joinable, err := decodeBool(fields[1])
	if err != nil {
		return err
	}
	m.Name = fields[0]
	m.Joinable = joinable
	return nil
}

// NewGameWithOptions announces an option-bearing game to clients at or above
// VersionGameOptions. Option values may have been remapped downward for the
// receiving client's version.
type NewGameWithOptions struct {
	Name       string
	Joinable   bool
	MinVersion int
	Options    []GameOption
}

func (m *NewGameWithOptions) Type() int { return TypeNewGameWithOptions }

func (m *NewGameWithOptions) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Name) {
		return "", ErrUnsafeField
	}
	opts, err := encodeOptions(m.Options)
	if err != nil {
		return "", err
	}
	return encodeLine(TypeNewGameWithOptions, m.Name, encodeBool(m.Joinable),
		strconv.Itoa(m.MinVersion), opts), nil
}

func (m *NewGameWithOptions) decode(fields []string) error {
	if len(fields) != 4 {
		return ErrBadFieldCount
	}
	joinable, err := decodeBool(fields[1])
	if err != nil {
		return err
	}
	minVers, err := strconv.Atoi(fields[2])
	if err != nil || minVers < 0 {
		return ErrBadFieldValue
	}
	opts, err := decodeOptions(fields[3])
	if err != nil {
		return err
	}
	m.Name = fields[0]
	m.Joinable = joinable
	m.MinVersion = minVers
	m.Options = opts
	return nil
}

// NewGameWithOptionsRequest asks the server to create a game with options.
type NewGameWithOptionsRequest struct {
	Nickname string
	Password string
	Game     string
	Options  []GameOption
}

func (m *NewGameWithOptionsRequest) Type() int { return TypeNewGameWithOptionsRequest }

func (m *NewGameWithOptionsRequest) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Nickname) || !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	if m.Password != "" && !IsSingleLineAndSafe(m.Password) {
		return "", ErrUnsafeField
	}
	opts, err := encodeOptions(m.Options)
	if err != nil {
		return "", err
	}
	return encodeLine(TypeNewGameWithOptionsRequest, m.Nickname,
		optionalField(m.Password), m.Game, opts), nil
}

func (m *NewGameWithOptionsRequest) decode(fields []string) error {
	if len(fields) != 4 {
		return ErrBadFieldCount
	}
	opts, err := decodeOptions(fields[3])
	if err != nil {
		return err
	}
	m.Nickname = fields[0]
	m.Password = decodeOptional(fields[1])
	m.Game = fields[2]
	m.Options = opts
	return nil
}

// JoinGame requests to join (or create, for optionless games) a game, and
// doubles as the server's member announcement.
type JoinGame struct {
	Nickname string
	Password string
	Game     string
}

func (m *JoinGame) Type() int { return TypeJoinGame }

func (m *JoinGame) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Nickname) || !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	if m.Password != "" && !IsSingleLineAndSafe(m.Password) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeJoinGame, m.Nickname, optionalField(m.Password), m.Game), nil
}

func (m *JoinGame) decode(fields []string) error {
	if len(fields) != 3 {
		return ErrBadFieldCount
	}
	m.Nickname = fields[0]
	m.Password = decodeOptional(fields[1])
	m.Game = fields[2]
	return nil
}

// LeaveGame announces or requests departure from a game.
type LeaveGame struct {
	Nickname string
	Game     string
}

func (m *LeaveGame) Type() int { return TypeLeaveGame }

func (m *LeaveGame) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Nickname) || !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeLeaveGame, m.Nickname, m.Game), nil
}

func (m *LeaveGame) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	m.Nickname = fields[0]
	m.Game = fields[1]
	return nil
}

// DeleteGame tells clients a game no longer exists.
type DeleteGame struct {
	Game string
}

func (m *DeleteGame) Type() int { return TypeDeleteGame }

func (m *DeleteGame) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeDeleteGame, m.Game), nil
}

func (m *DeleteGame) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Game = fields[0]
	return nil
}

// GameMembers lists current members of a game, sent to a joining client.
type GameMembers struct {
	Game    string
	Members []string
}

func (m *GameMembers) Type() int { return TypeGameMembers }

func (m *GameMembers) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	for _, n := range m.Members {
		if !IsSingleLineAndSafe(n) {
			return "", ErrUnsafeField
		}
	}
	members := "-"
	if len(m.Members) > 0 {
		members = strings.Join(m.Members, ListSep)
	}
	return encodeLine(TypeGameMembers, m.Game, members), nil
}

func (m *GameMembers) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	m.Game = fields[0]
	if fields[1] == "-" {
		m.Members = nil
	} else {
		m.Members = strings.Split(fields[1], ListSep)
	}
	return nil
}

// GameState reports the game's state-machine value.
type GameState struct {
	Game  string
	State int
}

func (m *GameState) Type() int { return TypeGameState }

func (m *GameState) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeGameState, m.Game, strconv.Itoa(m.State)), nil
}

func (m *GameState) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	state, err := strconv.Atoi(fields[1])
	if err != nil || state < 0 {
		return ErrBadFieldValue
	}
	m.Game = fields[0]
	m.State = state
	return nil
}

// ---------------------------------------------------------------------------
// Seat and turn messages
// ---------------------------------------------------------------------------

// SitDown requests or announces a player taking a seat.
type SitDown struct {
	Game     string
	Nickname string
	Seat     int
	IsRobot  bool
}

func (m *SitDown) Type() int { return TypeSitDown }

func (m *SitDown) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) || !IsSingleLineAndSafe(m.Nickname) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeSitDown, m.Game, m.Nickname, strconv.Itoa(m.Seat), encodeBool(m.IsRobot)), nil
}

func (m *SitDown) decode(fields []string) error {
	if len(fields) != 4 {
		return ErrBadFieldCount
	}
	seat, err := strconv.Atoi(fields[2])
	if err != nil || seat < 0 {
		return ErrBadFieldValue
	}
	isRobot, err := decodeBool(fields[3])
	if err != nil {
		return err
	}
	m.Game = fields[0]
	m.Nickname = fields[1]
	m.Seat = seat
	m.IsRobot = isRobot
	return nil
}

// SetSeatLock requests or announces a seat lock change.
type SetSeatLock struct {
	Game   string
	Seat   int
	Locked bool
}

func (m *SetSeatLock) Type() int { return TypeSetSeatLock }

func (m *SetSeatLock) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeSetSeatLock, m.Game, strconv.Itoa(m.Seat), encodeBool(m.Locked)), nil
}

func (m *SetSeatLock) decode(fields []string) error {
	if len(fields) != 3 {
		return ErrBadFieldCount
	}
	seat, err := strconv.Atoi(fields[1])
	if err != nil || seat < 0 {
		return ErrBadFieldValue
	}
	locked, err := decodeBool(fields[2])
	if err != nil {
		return err
	}
	m.Game = fields[0]
	m.Seat = seat
	m.Locked = locked
	return nil
}

// Turn announces whose turn it now is.
type Turn struct {
	Game string
	Seat int
}

func (m *Turn) Type() int { return TypeTurn }

func (m *Turn) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeTurn, m.Game, strconv.Itoa(m.Seat)), nil
}

func (m *Turn) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	seat, err := strconv.Atoi(fields[1])
	if err != nil || seat < 0 {
		return ErrBadFieldValue
	}
	m.Game = fields[0]
	m.Seat = seat
	return nil
}

// EndTurn is the current player's request to end their turn.
type EndTurn struct {
	Game string
}

func (m *EndTurn) Type() int { return TypeEndTurn }

func (m *EndTurn) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeEndTurn, m.Game), nil
}

func (m *EndTurn) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Game = fields[0]
	return nil
}

// StartGame asks the server to start a game whose seats are filled, or to
// fill remaining seats with robots first.
type StartGame struct {
	Game string
}

func (m *StartGame) Type() int { return TypeStartGame }

func (m *StartGame) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeStartGame, m.Game), nil
}

func (m *StartGame) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Game = fields[0]
	return nil
}

// DiscardRequest tells a player how many resources they must discard.
type DiscardRequest struct {
	Game  string
	Seat  int
	Count int
}

func (m *DiscardRequest) Type() int { return TypeDiscardRequest }

func (m *DiscardRequest) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeDiscardRequest, m.Game, strconv.Itoa(m.Seat), strconv.Itoa(m.Count)), nil
}

func (m *DiscardRequest) decode(fields []string) error {
	if len(fields) != 3 {
		return ErrBadFieldCount
	}
	seat, err := strconv.Atoi(fields[1])
	if err != nil || seat < 0 {
		return ErrBadFieldValue
	}
	count, err := strconv.Atoi(fields[2])
	if err != nil || count < 0 {
		return ErrBadFieldValue
	}
	m.Game = fields[0]
	m.Seat = seat
	m.Count = count
	return nil
}

// Discard is the player's answer to a DiscardRequest.
type Discard struct {
	Game      string
	Resources ResourceSet
}

func (m *Discard) Type() int { return TypeDiscard }

func (m *Discard) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeDiscard, m.Game, m.Resources.encode()), nil
}

func (m *Discard) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	rs, err := decodeResourceSet(fields[1])
	if err != nil {
		return err
	}
	m.Game = fields[0]
	m.Resources = rs
	return nil
}

// ForcedEndTurn reports a watchdog-forced turn end to a game's members.
// Hidden distinguishes "treated as a discard with hidden types" from
// "returned to the owner with known types".
type ForcedEndTurn struct {
	Game     string
	Seat     int
	Returned ResourceSet
	Hidden   bool
}

func (m *ForcedEndTurn) Type() int { return TypeForcedEndTurn }

func (m *ForcedEndTurn) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeForcedEndTurn, m.Game, strconv.Itoa(m.Seat),
		m.Returned.encode(), encodeBool(m.Hidden)), nil
}

func (m *ForcedEndTurn) decode(fields []string) error {
	if len(fields) != 4 {
		return ErrBadFieldCount
	}
	seat, err := strconv.Atoi(fields[1])
	if err != nil || seat < 0 {
		return ErrBadFieldValue
	}
	rs, err := decodeResourceSet(fields[2])
	if err != nil {
		return err
	}
	hidden, err := decodeBool(fields[3])
	if err != nil {
		return err
	}
	m.Game = fields[0]
	m.Seat = seat
	m.Returned = rs
	m.Hidden = hidden
	return nil
}

// ---------------------------------------------------------------------------
// Board-reset vote messages
// ---------------------------------------------------------------------------

// ResetBoardRequest asks to reset the board to the lobby state.
type ResetBoardRequest struct {
	Game string
}

func (m *ResetBoardRequest) Type() int { return TypeResetBoardRequest }

func (m *ResetBoardRequest) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeResetBoardRequest, m.Game), nil
}

func (m *ResetBoardRequest) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Game = fields[0]
	return nil
}

// ResetBoardVoteRequest asks a player to vote on a pending reset.
type ResetBoardVoteRequest struct {
	Game          string
	RequesterSeat int
}

func (m *ResetBoardVoteRequest) Type() int { return TypeResetBoardVoteRequest }

func (m *ResetBoardVoteRequest) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeResetBoardVoteRequest, m.Game, strconv.Itoa(m.RequesterSeat)), nil
}

func (m *ResetBoardVoteRequest) decode(fields []string) error {
	if len(fields) != 2 {
		return ErrBadFieldCount
	}
	seat, err := strconv.Atoi(fields[1])
	if err != nil || seat < 0 {
		return ErrBadFieldValue
	}
	m.Game = fields[0]
	m.RequesterSeat = seat
	return nil
}

// ResetBoardVote carries one player's vote.
type ResetBoardVote struct {
	Game string
	Seat int
	Yes  bool
}

func (m *ResetBoardVote) Type() int { return TypeResetBoardVote }

func (m *ResetBoardVote) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeResetBoardVote, m.Game, strconv.Itoa(m.Seat), encodeBool(m.Yes)), nil
}

func (m *ResetBoardVote) decode(fields []string) error {
	if len(fields) != 3 {
		return ErrBadFieldCount
	}
	seat, err := strconv.Atoi(fields[1])
	if err != nil || seat < 0 {
		return ErrBadFieldValue
	}
	yes, err := decodeBool(fields[2])
	if err != nil {
		return err
	}
	m.Game = fields[0]
	m.Seat = seat
	m.Yes = yes
	return nil
}

// ResetBoardAuth announces that the reset vote passed and the board reset.
type ResetBoardAuth struct {
	Game string
}

func (m *ResetBoardAuth) Type() int { return TypeResetBoardAuth }

func (m *ResetBoardAuth) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeResetBoardAuth, m.Game), nil
}

func (m *ResetBoardAuth) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Game = fields[0]
	return nil
}

// ResetBoardReject announces that the reset vote failed.
type ResetBoardReject struct {
	Game string
}

func (m *ResetBoardReject) Type() int { return TypeResetBoardReject }

func (m *ResetBoardReject) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeResetBoardReject, m.Game), nil
}

func (m *ResetBoardReject) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Game = fields[0]
	return nil
}

// ---------------------------------------------------------------------------
// Robot messages
// ---------------------------------------------------------------------------

// RobotJoinGameRequest asks a robot to join a game and take a seat.
type RobotJoinGameRequest struct {
	Game    string
	Seat    int
	Options []GameOption
}

func (m *RobotJoinGameRequest) Type() int { return TypeRobotJoinGameRequest }

func (m *RobotJoinGameRequest) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	opts, err := encodeOptions(m.Options)
	if err != nil {
		return "", err
	}
	return encodeLine(TypeRobotJoinGameRequest, m.Game, strconv.Itoa(m.Seat), opts), nil
}

func (m *RobotJoinGameRequest) decode(fields []string) error {
	if len(fields) != 3 {
		return ErrBadFieldCount
	}
	seat, err := strconv.Atoi(fields[1])
	if err != nil || seat < 0 {
		return ErrBadFieldValue
	}
	opts, err := decodeOptions(fields[2])
	if err != nil {
		return err
	}
	m.Game = fields[0]
	m.Seat = seat
	m.Options = opts
	return nil
}

// RobotDismissRequest asks a seated robot to leave a game so a returning
// human can take the seat back.
type RobotDismissRequest struct {
	Game string
}

func (m *RobotDismissRequest) Type() int { return TypeRobotDismissRequest }

func (m *RobotDismissRequest) Encode() (string, error) {
	if !IsSingleLineAndSafe(m.Game) {
		return "", ErrUnsafeField
	}
	return encodeLine(TypeRobotDismissRequest, m.Game), nil
}

func (m *RobotDismissRequest) decode(fields []string) error {
	if len(fields) != 1 {
		return ErrBadFieldCount
	}
	m.Game = fields[0]
	return nil
}
