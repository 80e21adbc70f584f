package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"maps"
	mrand "math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Room-wide event types. Every outbound message carries one of these plus a
// server timestamp.
const (
	EventPlayerJoined      = "PLAYER_JOINED"
	EventPlayerLeft        = "PLAYER_LEFT"
	EventGameStarted       = "GAME_STARTED"
	EventGameRestarted     = "GAME_RESTARTED"
	EventDiceShaking       = "DICE_SHAKING"
	EventDiceRolled        = "DICE_ROLLED"
	EventAutoDiceRoll      = "AUTO_DICE_ROLL"
	EventQuestionPresented = "QUESTION_PRESENTED"
	EventAnswerValidated   = "ANSWER_VALIDATED"
	EventPlayerStays       = "PLAYER_STAYS"
	EventPlayerStepping    = "PLAYER_STEPPING"
	EventPlayerMoved       = "PLAYER_MOVED"
	EventLadderClimbed     = "LADDER_CLIMBED"
	EventSnakeSlid         = "SNAKE_SLID"
	EventGameFinished      = "GAME_FINISHED"
	EventWinnerAnnounced   = "WINNER_ANNOUNCED"
	EventTurnStarted       = "TURN_STARTED"

	// Direct-to-player events.
	EventYourTurn    = "YOUR_TURN"
	EventJoinedGame  = "joined-game"
	EventAdminJoined = "admin-joined"
	EventError       = "error"

	// Supplementary room-wide feeds.
	EventGameState   = "game-state-update"
	EventGameMessage = "game-message"
)

// Messages coming from clients
type ClientMessage struct {
	Type       string `json:"type"`                 // "join-game", "start-game", "shake-dice", "answer-question", "restart-game"
	PlayerName string `json:"playerName,omitempty"` // join-game
	Answer     string `json:"answer,omitempty"`     // answer-question
}

type playerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Color    string `json:"color"`
}

func infoFor(p *Player) playerInfo {
	return playerInfo{
		ID:       p.ID,
		Name:     p.Name,
		Position: p.Position,
		Color:    p.Color,
	}
}

type PlayerEventMessage struct {
	Type      string     `json:"type"` // "PLAYER_JOINED" / "PLAYER_LEFT"
	Timestamp time.Time  `json:"timestamp"`
	Player    playerInfo `json:"player"`
}

type GameStartedMessage struct {
	Type      string    `json:"type"` // "GAME_STARTED"
	Timestamp time.Time `json:"timestamp"`
	TurnOrder []string  `json:"turnOrder"` // player names in turn order
}

type SimpleEventMessage struct {
	Type      string    `json:"type"` // events with no payload beyond the acting player
	Timestamp time.Time `json:"timestamp"`
	Player    string    `json:"player,omitempty"`
}

type DiceRolledMessage struct {
	Type      string    `json:"type"` // "DICE_ROLLED"
	Timestamp time.Time `json:"timestamp"`
	Player    string    `json:"player"`
	DiceValue int       `json:"diceValue"`
}

// questionPrompt is the wire shape of a posed question: answer texts only,
// correctness withheld.
type questionPrompt struct {
	ID      string   `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

func promptFor(q *Question) questionPrompt {
	return questionPrompt{
		ID:      q.ID,
		Text:    q.Text,
		Options: slices.Sorted(maps.Keys(q.Answers)),
	}
}

type QuestionPresentedMessage struct {
	Type      string         `json:"type"` // "QUESTION_PRESENTED"
	Timestamp time.Time      `json:"timestamp"`
	Player    string         `json:"player"`
	Question  questionPrompt `json:"question"`
}

type AnswerValidatedMessage struct {
	Type           string    `json:"type"` // "ANSWER_VALIDATED"
	Timestamp      time.Time `json:"timestamp"`
	Player         string    `json:"player"`
	IsCorrect      bool      `json:"isCorrect"`
	SelectedAnswer string    `json:"selectedAnswer"`
	CorrectAnswer  string    `json:"correctAnswer"`
}

type PlayerSteppingMessage struct {
	Type            string    `json:"type"` // "PLAYER_STEPPING"
	Timestamp       time.Time `json:"timestamp"`
	Player          string    `json:"player"`
	StepNumber      int       `json:"stepNumber"`
	TotalSteps      int       `json:"totalSteps"`
	CurrentPosition int       `json:"currentPosition"`
}

type PlayerMovedMessage struct {
	Type          string    `json:"type"` // "PLAYER_MOVED"
	Timestamp     time.Time `json:"timestamp"`
	Player        string    `json:"player"`
	FinalPosition int       `json:"finalPosition"`
	StepsCount    int       `json:"stepsCount"`
}

type TransportMessage struct {
	Type         string    `json:"type"` // "LADDER_CLIMBED" / "SNAKE_SLID"
	Timestamp    time.Time `json:"timestamp"`
	Player       string    `json:"player"`
	FromPosition int       `json:"fromPosition"`
	ToPosition   int       `json:"toPosition"`
}

type WinnerAnnouncedMessage struct {
	Type      string     `json:"type"` // "WINNER_ANNOUNCED"
	Timestamp time.Time  `json:"timestamp"`
	Winner    playerInfo `json:"winner"`
}

type JoinedGameMessage struct {
	Type      string     `json:"type"` // "joined-game"
	Timestamp time.Time  `json:"timestamp"`
	Player    playerInfo `json:"player"`
}

type ErrorMessage struct {
	Type      string    `json:"type"` // "error"
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type GameMessage struct {
	Type      string    `json:"type"` // "game-message"
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type gameSnapshot struct {
	Status           GameStatus      `json:"status"`
	Players          []playerInfo    `json:"players"`
	CurrentPlayer    string          `json:"currentPlayer"`
	CurrentQuestion  *questionPrompt `json:"currentQuestion"`
	WaitingForAnswer bool            `json:"waitingForAnswer"`
	DiceValue        int             `json:"diceValue"`
	Winner           string          `json:"winner"`
	HasAdmin         bool            `json:"hasAdmin"`
}

type GameStateMessage struct {
	Type      string       `json:"type"` // "game-state-update"
	Timestamp time.Time    `json:"timestamp"`
	State     gameSnapshot `json:"state"`
}

type Client struct {
	conn *websocket.Conn
	send chan any
	id   string
}

type clientAction struct {
	client *Client
	msg    ClientMessage
}

// task is a deferred continuation posted back onto the hub loop. The epoch
// pins it to the session it was scheduled against; a restart bumps the
// epoch and strands every task scheduled before it.
type task struct {
	epoch uint64
	fn    func()
}

// QuestionSource feeds the trivia gate. Satisfied by *QuestionStore.
type QuestionSource interface {
	All() ([]Question, error)
}

// Hub owns the single game session. All session mutation happens on the
// run loop: inbound actions arrive on typed channels, and every delayed or
// asynchronous continuation (timers, question fetches) is posted back onto
// the tasks channel rather than touching state from its own goroutine.
type Hub struct {
	cfg       *Config
	questions QuestionSource

	session *Session
	clients map[*Client]bool

	register  chan *Client
	unreg     chan *Client
	actions   chan clientAction
	tasks     chan task
	snapshots chan chan gameSnapshot

	// Scheduled work keyed by purpose and player, e.g. "turn-timeout:<id>".
	// Owned by the run loop.
	timers map[string]*time.Timer
	epoch  uint64
}

func newHub(cfg *Config, questions QuestionSource) *Hub {
	return &Hub{
		cfg:       cfg,
		questions: questions,
		session:   newSession(),
		clients:   make(map[*Client]bool),
		register:  make(chan *Client),
		unreg:     make(chan *Client),
		actions:   make(chan clientAction),
		tasks:     make(chan task, 64),
		snapshots: make(chan chan gameSnapshot),
		timers:    make(map[string]*time.Timer),
	}
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unreg:
			h.handleDisconnect(c)

		case a := <-h.actions:
			h.handleAction(a)

		case t := <-h.tasks:
			if t.epoch == h.epoch {
				t.fn()
			}

		case reply := <-h.snapshots:
			reply <- h.snapshot()
		}
	}
}

// Snapshot returns a client-facing view of the session, serialized through
// the run loop so it never races a mutation.
func (h *Hub) Snapshot() gameSnapshot {
	reply := make(chan gameSnapshot, 1)
	h.snapshots <- reply
	return <-reply
}

func (h *Hub) snapshot() gameSnapshot {
	s := h.session

	players := make([]playerInfo, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, infoFor(p))
	}
	slices.SortFunc(players, func(a, b playerInfo) int {
		return strings.Compare(a.Name, b.Name)
	})

	snap := gameSnapshot{
		Status:           s.Status,
		Players:          players,
		WaitingForAnswer: s.WaitingForAnswer,
		DiceValue:        s.LastDiceValue,
		HasAdmin:         s.AdminID != "",
	}
	if current := s.CurrentPlayer(); current != nil {
		snap.CurrentPlayer = current.Name
	}
	if s.PendingQuestion != nil {
		prompt := promptFor(s.PendingQuestion)
		snap.CurrentQuestion = &prompt
	}
	if s.Winner != nil {
		snap.Winner = s.Winner.Name
	}

	return snap
}

// schedule arms (or replaces) a keyed timer whose body runs on the hub
// loop. A fired timer that was superseded before its task drained is
// recognized by identity and dropped.
func (h *Hub) schedule(key string, d time.Duration, fn func()) {
	h.cancelTimer(key)

	epoch := h.epoch
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		h.tasks <- task{
			epoch: epoch,
			fn: func() {
				if h.timers[key] != timer {
					return
				}
				delete(h.timers, key)
				fn()
			},
		}
	})
	h.timers[key] = timer
}

func (h *Hub) cancelTimer(key string) {
	if timer, ok := h.timers[key]; ok {
		timer.Stop()
		delete(h.timers, key)
	}
}

func (h *Hub) cancelTimersFor(playerID string) {
	for _, purpose := range []string{"turn-timeout", "roll", "step", "settle"} {
		h.cancelTimer(purpose + ":" + playerID)
	}
}

func (h *Hub) cancelAllTimers() {
	for key, timer := range h.timers {
		timer.Stop()
		delete(h.timers, key)
	}
}

func (h *Hub) timerActive(key string) bool {
	_, ok := h.timers[key]
	return ok
}

func (h *Hub) broadcast(msg any) {
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) unicast(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) unicastTo(playerID string, msg any) {
	for client := range h.clients {
		if client.id == playerID {
			h.unicast(client, msg)
			return
		}
	}
}

func (h *Hub) sendError(c *Client, message string) {
	h.unicast(c, ErrorMessage{
		Type:      EventError,
		Timestamp: time.Now(),
		Message:   message,
	})
}

func (h *Hub) announce(format string, args ...any) {
	h.broadcast(GameMessage{
		Type:      EventGameMessage,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf(format, args...),
	})
}

func (h *Hub) broadcastState() {
	h.broadcast(GameStateMessage{
		Type:      EventGameState,
		Timestamp: time.Now(),
		State:     h.snapshot(),
	})
}

func (h *Hub) handleAction(a clientAction) {
	switch a.msg.Type {
	case "join-game":
		h.handleJoin(a.client, a.msg.PlayerName)
	case "start-game":
		h.handleStart(a.client)
	case "shake-dice":
		h.handleRoll(a.client)
	case "answer-question":
		h.handleAnswer(a.client, a.msg.Answer)
	case "restart-game":
		h.handleRestart(a.client)
	}
}

func (h *Hub) handleJoin(c *Client, rawName string) {
	name := strings.TrimSpace(rawName)

	// The reserved admin name joins the room as a spectating controller,
	// never as a board piece.
	if h.cfg.adminUsername != "" && name == h.cfg.adminUsername {
		h.unicast(c, SimpleEventMessage{
			Type:      EventAdminJoined,
			Timestamp: time.Now(),
		})
		h.broadcastState()
		logf(h.cfg, "GAMES: Admin joined from connection %s", c.id)
		return
	}

	player, err := h.session.AddPlayer(c.id, name)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}

	h.broadcast(PlayerEventMessage{
		Type:      EventPlayerJoined,
		Timestamp: time.Now(),
		Player:    infoFor(player),
	})
	h.announce("%s joined the game", player.Name)

	h.unicast(c, JoinedGameMessage{
		Type:      EventJoinedGame,
		Timestamp: time.Now(),
		Player:    infoFor(player),
	})

	h.broadcastState()
	logf(h.cfg, "GAMES: Player %q joined", player.Name)
}

func (h *Hub) handleStart(c *Client) {
	if h.session.Status == StatusInProgress {
		h.sendError(c, "Game already in progress")
		return
	}

	if len(h.session.Players) < minPlayers {
		h.sendError(c, ErrNotEnoughPlayers.Error())
		return
	}

	h.session.SetAdmin(c.id)

	if err := h.session.StartGame(); err != nil {
		h.sendError(c, err.Error())
		return
	}

	names := make([]string, 0, len(h.session.TurnOrder))
	for _, id := range h.session.TurnOrder {
		names = append(names, h.session.Players[id].Name)
	}

	h.broadcast(GameStartedMessage{
		Type:      EventGameStarted,
		Timestamp: time.Now(),
		TurnOrder: names,
	})
	h.announce("Game Started")
	h.broadcastState()
	logf(h.cfg, "GAMES: Game started with %d players", len(names))

	h.startTurn()
}

func (h *Hub) handleRestart(c *Client) {
	h.cancelAllTimers()
	h.epoch++

	h.broadcast(SimpleEventMessage{
		Type:      EventGameRestarted,
		Timestamp: time.Now(),
	})

	// Closing send lets each writePump flush whatever is queued (the
	// restart event included) before it closes its own connection.
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}

	h.session = newSession()
	logf(h.cfg, "GAMES: Game restarted by connection %s", c.id)
}

func (h *Hub) handleRoll(c *Client) {
	current := h.session.CurrentPlayer()
	if h.session.Status != StatusInProgress || current == nil || current.ID != c.id {
		h.sendError(c, "Not your turn")
		return
	}

	if h.session.WaitingForAnswer || h.session.LastDiceValue != 0 || h.timerActive("roll:"+c.id) {
		h.sendError(c, "Already shook dice, answer the question")
		return
	}

	h.cancelTimer("turn-timeout:" + c.id)
	h.rollDice(current)
}

// rollDice runs the shared dice procedure: shake, delayed roll result,
// then either the trivia gate or, when the landing square is a transport,
// a free move with the question skipped.
func (h *Hub) rollDice(player *Player) {
	h.broadcast(SimpleEventMessage{
		Type:      EventDiceShaking,
		Timestamp: time.Now(),
		Player:    player.Name,
	})
	h.announce("%s shaking dice", player.Name)

	h.schedule("roll:"+player.ID, h.cfg.rollDelay, func() {
		h.applyRoll(player, h.session.RollDice())
	})
}

// applyRoll announces the rolled value and routes the turn: a landing
// square in the transport tables is a guaranteed move with the trivia
// gate skipped, anything else goes through a question first.
func (h *Hub) applyRoll(player *Player, value int) {
	h.broadcast(DiceRolledMessage{
		Type:      EventDiceRolled,
		Timestamp: time.Now(),
		Player:    player.Name,
		DiceValue: value,
	})
	h.announce("%s got %d", player.Name, value)

	if _, ok := h.session.TransportAt(player.Position + value); ok {
		h.moveWithAnimation(player, value)
		return
	}

	h.presentQuestion(player)
}

// presentQuestion fetches the bank off the loop and posts the pick back
// in. An empty bank or a fetch failure is logged and leaves the turn
// where it is. The completion is dropped unless the roller still holds
// the turn with their dice value intact, so a disconnect or turn change
// mid-fetch cannot pose the question to a player who never rolled.
func (h *Hub) presentQuestion(roller *Player) {
	epoch := h.epoch
	rollerID := roller.ID

	go func() {
		questions, err := h.questions.All()

		h.tasks <- task{
			epoch: epoch,
			fn: func() {
				if err != nil {
					log.Printf("%s | ERROR: fetching questions: %v", time.Now().Format(logDate), err)
					return
				}
				if len(questions) == 0 {
					logf(h.cfg, "GAMES: Question bank is empty, turn stalled")
					return
				}

				current := h.session.CurrentPlayer()
				if h.session.Status != StatusInProgress || current == nil ||
					current.ID != rollerID || h.session.WaitingForAnswer ||
					h.session.LastDiceValue == 0 {
					return
				}

				question := questions[mrand.IntN(len(questions))]
				h.session.PoseQuestion(&question)

				h.broadcast(QuestionPresentedMessage{
					Type:      EventQuestionPresented,
					Timestamp: time.Now(),
					Player:    current.Name,
					Question:  promptFor(&question),
				})
				h.announce("%s got question: %s", current.Name, question.Text)
				h.broadcastState()
			},
		}
	}()
}

func (h *Hub) handleAnswer(c *Client, answer string) {
	current := h.session.CurrentPlayer()
	if h.session.Status != StatusInProgress || current == nil || current.ID != c.id {
		h.sendError(c, "Not your turn")
		return
	}

	question := h.session.PendingQuestion
	if !h.session.WaitingForAnswer || question == nil {
		h.sendError(c, "No question to answer")
		return
	}

	correct, _ := question.Answers.Correct()
	isCorrect := answer == correct

	h.session.ResolveQuestion()

	h.broadcast(AnswerValidatedMessage{
		Type:           EventAnswerValidated,
		Timestamp:      time.Now(),
		Player:         current.Name,
		IsCorrect:      isCorrect,
		SelectedAnswer: answer,
		CorrectAnswer:  correct,
	})

	if isCorrect {
		h.announce("%s answered correctly", current.Name)
		h.moveWithAnimation(current, h.session.LastDiceValue)
		return
	}

	h.announce("%s answered wrong", current.Name)
	h.broadcast(SimpleEventMessage{
		Type:      EventPlayerStays,
		Timestamp: time.Now(),
		Player:    current.Name,
	})
	h.schedule("settle:"+current.ID, h.cfg.settleDelay, h.nextTurn)
}

// moveWithAnimation resolves the whole move up front, then replays the
// path one stepping event at a time so clients can animate it.
func (h *Hub) moveWithAnimation(player *Player, steps int) {
	path := h.session.MovePlayer(player, steps)
	h.animateStep(player, path, steps, 0)
}

func (h *Hub) animateStep(player *Player, path []int, steps, index int) {
	if index < len(path) {
		h.broadcast(PlayerSteppingMessage{
			Type:            EventPlayerStepping,
			Timestamp:       time.Now(),
			Player:          player.Name,
			StepNumber:      index + 1,
			TotalSteps:      len(path),
			CurrentPosition: path[index],
		})

		h.schedule("step:"+player.ID, h.cfg.stepDelay, func() {
			h.animateStep(player, path, steps, index+1)
		})
		return
	}

	final := player.Position

	h.broadcast(PlayerMovedMessage{
		Type:          EventPlayerMoved,
		Timestamp:     time.Now(),
		Player:        player.Name,
		FinalPosition: final,
		StepsCount:    len(path),
	})

	// A path longer than the roll means the landing square transported
	// the player.
	if len(path) > steps {
		landing := path[steps-1]

		eventType := EventSnakeSlid
		commentary := "%s sliding down snake"
		if top, ok := h.session.Ladders[landing]; ok && top == final {
			eventType = EventLadderClimbed
			commentary = "%s climbing up ladder"
		}

		h.broadcast(TransportMessage{
			Type:         eventType,
			Timestamp:    time.Now(),
			Player:       player.Name,
			FromPosition: landing,
			ToPosition:   final,
		})
		h.announce(commentary, player.Name)
	}

	// Win detection runs after every movement resolution, including moves
	// that skipped the trivia gate.
	if h.session.CheckWinner(player) {
		h.broadcast(SimpleEventMessage{
			Type:      EventGameFinished,
			Timestamp: time.Now(),
			Player:    player.Name,
		})
		h.broadcast(WinnerAnnouncedMessage{
			Type:      EventWinnerAnnounced,
			Timestamp: time.Now(),
			Winner:    infoFor(player),
		})
		h.announce("%s wins the game!", player.Name)
		h.broadcastState()
		logf(h.cfg, "GAMES: %q won the game", player.Name)
		return
	}

	h.schedule("settle:"+player.ID, h.cfg.settleDelay, h.nextTurn)
}

func (h *Hub) nextTurn() {
	h.session.AdvanceTurn()
	h.startTurn()
}

func (h *Hub) startTurn() {
	current := h.session.CurrentPlayer()
	if current == nil {
		return
	}

	h.broadcast(SimpleEventMessage{
		Type:      EventTurnStarted,
		Timestamp: time.Now(),
		Player:    current.Name,
	})
	h.announce("%s turn", current.Name)
	h.broadcastState()

	h.unicastTo(current.ID, SimpleEventMessage{
		Type:      EventYourTurn,
		Timestamp: time.Now(),
	})

	playerID := current.ID
	h.schedule("turn-timeout:"+playerID, h.cfg.turnTimeout, func() {
		player := h.session.Players[playerID]
		turnHolder := h.session.CurrentPlayer()
		if player == nil || h.session.Status != StatusInProgress ||
			turnHolder == nil || turnHolder.ID != playerID ||
			h.session.WaitingForAnswer {
			return
		}

		h.broadcast(SimpleEventMessage{
			Type:      EventAutoDiceRoll,
			Timestamp: time.Now(),
			Player:    player.Name,
		})
		h.rollDice(player)
	})
}

func (h *Hub) handleDisconnect(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}

	h.cancelTimersFor(c.id)

	player, ok := h.session.Players[c.id]
	if !ok {
		return
	}

	current := h.session.CurrentPlayer()
	heldTurn := current != nil && current.ID == c.id

	h.session.RemovePlayer(c.id)

	h.broadcast(PlayerEventMessage{
		Type:      EventPlayerLeft,
		Timestamp: time.Now(),
		Player:    infoFor(player),
	})
	h.announce("%s left the game", player.Name)
	h.broadcastState()
	logf(h.cfg, "GAMES: Player %q left", player.Name)

	// A departing turn holder would stall the game; hand the turn to
	// whoever the cursor now points at.
	if heldTurn && h.session.Status == StatusInProgress {
		h.session.ClearTurnState()
		h.startTurn()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "ladderquiz_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func serveWS(cfg *Config, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
			id:   playerID,
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join-game", "start-game", "shake-dice", "answer-question", "restart-game":
			h.actions <- clientAction{
				client: c,
				msg:    msg,
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the game URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /game/qr; strip trailing "/qr" to get the game URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerGame sets up the game surface:
//   - $path/ws  → the WebSocket session
//   - $path/qr  → PNG QR code for the join URL
func registerGame(cfg *Config, path string, hub *Hub, mux *httprouter.Router) {
	go hub.run()

	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, hub))
	mux.GET(cfg.prefix+path+"/qr", qrHandler)
}
