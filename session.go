package main

import (
	"errors"
	"maps"
	"math/rand/v2"
	"strings"
)

const (
	winningSquare = 100
	maxNameLength = 20
	minPlayers    = 2
)

var (
	ErrEmptyName        = errors.New("player name cannot be empty")
	ErrNameTooLong      = errors.New("player name is too long")
	ErrDuplicateName    = errors.New("player name is already taken")
	ErrAlreadyJoined    = errors.New("already joined the game")
	ErrNotEnoughPlayers = errors.New("need at least 2 players to start")
)

type GameStatus string

const (
	StatusWaiting    GameStatus = "waiting"
	StatusInProgress GameStatus = "in_progress"
	StatusFinished   GameStatus = "finished"
)

// Player is one board piece. The ID is the owning connection's id, so a
// player lives exactly as long as its connection (or the session).
type Player struct {
	ID       string
	Name     string
	Position int
	Color    string
}

func (p *Player) HasWon() bool {
	return p.Position >= winningSquare
}

func randomColor() string {
	const letters = "0123456789ABCDEF"

	out := make([]byte, 7)
	out[0] = '#'
	for i := 1; i < len(out); i++ {
		out[i] = letters[rand.IntN(len(letters))]
	}

	return string(out)
}

// Session is the state of the single active game: the roster, the fixed
// turn order once started, and whatever the current turn is waiting on.
// It never schedules anything itself; the hub drives it and serializes
// all access.
type Session struct {
	Status             GameStatus
	Players            map[string]*Player
	TurnOrder          []string
	CurrentPlayerIndex int
	PendingQuestion    *Question
	WaitingForAnswer   bool
	LastDiceValue      int
	AdminID            string
	Winner             *Player

	// Transport tables: ladder bottom -> top, snake head -> tail.
	// Static configuration; the key sets are disjoint.
	Ladders map[int]int
	Snakes  map[int]int
}

func newSession() *Session {
	return &Session{
		Status:  StatusWaiting,
		Players: make(map[string]*Player),
		Ladders: maps.Clone(boardLadders),
		Snakes:  maps.Clone(boardSnakes),
	}
}

// AddPlayer validates and registers a new player at the start square.
// Names are trimmed and must be unique case-insensitively against the
// current roster. A connection id may only hold one player; a repeat
// join must not clobber the existing piece.
func (s *Session) AddPlayer(id, name string) (*Player, error) {
	if _, ok := s.Players[id]; ok {
		return nil, ErrAlreadyJoined
	}

	name = strings.TrimSpace(name)

	if name == "" {
		return nil, ErrEmptyName
	}
	if len(name) > maxNameLength {
		return nil, ErrNameTooLong
	}
	for _, p := range s.Players {
		if strings.EqualFold(p.Name, name) {
			return nil, ErrDuplicateName
		}
	}

	player := &Player{
		ID:       id,
		Name:     name,
		Position: 0,
		Color:    randomColor(),
	}
	s.Players[id] = player

	return player, nil
}

// RemovePlayer drops a player from the roster and the turn order. Removing
// the last ordered player resets the session to waiting. Unknown ids are
// ignored.
func (s *Session) RemovePlayer(id string) {
	if _, ok := s.Players[id]; !ok {
		return
	}
	delete(s.Players, id)

	for i, ordered := range s.TurnOrder {
		if ordered != id {
			continue
		}
		s.TurnOrder = append(s.TurnOrder[:i], s.TurnOrder[i+1:]...)
		if i < s.CurrentPlayerIndex {
			s.CurrentPlayerIndex--
		}
		break
	}

	if len(s.TurnOrder) == 0 {
		s.Status = StatusWaiting
		s.CurrentPlayerIndex = 0
		return
	}
	s.CurrentPlayerIndex %= len(s.TurnOrder)
}

func (s *Session) SetAdmin(id string) {
	s.AdminID = id
}

func (s *Session) IsAdmin(id string) bool {
	return s.AdminID == id
}

// StartGame freezes the roster into a uniformly shuffled turn order and
// moves the session in progress.
func (s *Session) StartGame() error {
	if len(s.Players) < minPlayers {
		return ErrNotEnoughPlayers
	}

	ids := make([]string, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}

	// Fisher-Yates
	for i := len(ids) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}

	s.TurnOrder = ids
	s.CurrentPlayerIndex = 0
	s.Status = StatusInProgress

	return nil
}

func (s *Session) CurrentPlayer() *Player {
	if len(s.TurnOrder) == 0 {
		return nil
	}
	return s.Players[s.TurnOrder[s.CurrentPlayerIndex]]
}

// AdvanceTurn hands the turn to the next ordered player and clears the
// per-turn dice and question state.
func (s *Session) AdvanceTurn() {
	if len(s.TurnOrder) == 0 {
		return
	}
	s.CurrentPlayerIndex = (s.CurrentPlayerIndex + 1) % len(s.TurnOrder)
	s.ClearTurnState()
}

func (s *Session) RollDice() int {
	s.LastDiceValue = rand.IntN(6) + 1
	return s.LastDiceValue
}

func (s *Session) PoseQuestion(q *Question) {
	s.PendingQuestion = q
	s.WaitingForAnswer = true
}

// ResolveQuestion clears the pending question once an answer has been
// validated, so a second answer cannot be replayed against it.
func (s *Session) ResolveQuestion() {
	s.PendingQuestion = nil
	s.WaitingForAnswer = false
}

// ClearTurnState drops all per-turn state without moving the cursor. Used
// when the turn holder disappears mid-turn.
func (s *Session) ClearTurnState() {
	s.WaitingForAnswer = false
	s.PendingQuestion = nil
	s.LastDiceValue = 0
}

// TransportAt reports where a square relocates a player landing on it
// exactly. Ladders win if a square were ever present in both tables.
func (s *Session) TransportAt(square int) (int, bool) {
	if top, ok := s.Ladders[square]; ok {
		return top, true
	}
	if tail, ok := s.Snakes[square]; ok {
		return tail, true
	}
	return 0, false
}

// MovePlayer advances a player square by square, then applies at most one
// ladder or snake transport from the landing square. The returned path
// holds every square crossed, with the transport destination appended when
// one fired; the player's stored position is updated to the final entry.
func (s *Session) MovePlayer(player *Player, steps int) []int {
	path := make([]int, 0, steps+1)
	pos := player.Position

	for i := 0; i < steps; i++ {
		pos++
		path = append(path, pos)
	}

	if dest, ok := s.TransportAt(pos); ok {
		path = append(path, dest)
		pos = dest
	}

	player.Position = pos

	return path
}

// CheckWinner reports whether the player has reached the final square,
// recording them as the winner and finishing the session. A finished
// session keeps its first winner.
func (s *Session) CheckWinner(player *Player) bool {
	if !player.HasWon() {
		return false
	}
	if s.Status != StatusFinished {
		s.Winner = player
		s.Status = StatusFinished
	}
	return true
}
