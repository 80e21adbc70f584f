package main

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func testConfig() *Config {
	return &Config{
		adminUsername: "admin",
		rollDelay:     time.Millisecond,
		stepDelay:     time.Millisecond,
		settleDelay:   5 * time.Millisecond,
		turnTimeout:   time.Minute,
	}
}

type fakeQuestionSource struct {
	questions []Question
	err       error
}

func (f *fakeQuestionSource) All() ([]Question, error) {
	return f.questions, f.err
}

func capitalQuestion() Question {
	return Question{
		ID:      "q1",
		Text:    "Capital of France?",
		Answers: AnswerMap{"Paris": true, "London": false, "Rome": false},
	}
}

func startTestHub(cfg *Config, src QuestionSource) *Hub {
	if cfg == nil {
		cfg = testConfig()
	}
	h := newHub(cfg, src)
	go h.run()
	return h
}

func newTestClient(h *Hub, id string) *Client {
	c := &Client{
		send: make(chan any, 256),
		id:   id,
	}
	h.register <- c
	return c
}

func act(h *Hub, c *Client, msg ClientMessage) {
	h.actions <- clientAction{client: c, msg: msg}
}

// runOnHub executes fn on the hub loop and waits for it, so tests can
// arrange session state without racing the coordinator.
func runOnHub(h *Hub, fn func()) {
	done := make(chan struct{})
	h.tasks <- task{
		epoch: 0,
		fn: func() {
			fn()
			close(done)
		},
	}
	<-done
}

func eventType(msg any) string {
	data, err := json.Marshal(msg)
	if err != nil {
		return ""
	}
	var envelope struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &envelope)
	return envelope.Type
}

// awaitEvent reads from a client's send channel, discarding events until
// one of the wanted type arrives.
func awaitEvent(t *testing.T, c *Client, want string) any {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				t.Fatalf("channel closed while waiting for %s", want)
			}
			if eventType(msg) == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func collectEvents(c *Client, d time.Duration) []any {
	deadline := time.After(d)
	var out []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		case <-deadline:
			return out
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func countType(events []any, eventName string) int {
	count := 0
	for _, e := range events {
		if eventType(e) == eventName {
			count++
		}
	}
	return count
}

func typeIndex(events []any, eventName string) int {
	for i, e := range events {
		if eventType(e) == eventName {
			return i
		}
	}
	return -1
}

// setupStartedGame joins Ann and Bob, starts the game, and reports who
// holds the first turn.
func setupStartedGame(t *testing.T, cfg *Config, src QuestionSource) (h *Hub, byName map[string]*Client, current, next string) {
	t.Helper()

	h = startTestHub(cfg, src)

	c1 := newTestClient(h, "c1")
	act(h, c1, ClientMessage{Type: "join-game", PlayerName: "Ann"})
	awaitEvent(t, c1, EventJoinedGame)

	c2 := newTestClient(h, "c2")
	act(h, c2, ClientMessage{Type: "join-game", PlayerName: "Bob"})
	awaitEvent(t, c2, EventJoinedGame)

	act(h, c1, ClientMessage{Type: "start-game"})
	awaitEvent(t, c1, EventGameStarted)
	awaitEvent(t, c1, EventTurnStarted)

	current = h.Snapshot().CurrentPlayer
	if current == "Ann" {
		next = "Bob"
	} else {
		next = "Ann"
	}

	byName = map[string]*Client{"Ann": c1, "Bob": c2}
	drain(c1)
	drain(c2)

	return h, byName, current, next
}

func TestHubJoinBroadcastsAndAcknowledges(t *testing.T) {
	h := startTestHub(nil, &fakeQuestionSource{})

	c1 := newTestClient(h, "c1")
	act(h, c1, ClientMessage{Type: "join-game", PlayerName: "Ann"})

	joined := awaitEvent(t, c1, EventJoinedGame).(JoinedGameMessage)
	if joined.Player.Name != "Ann" || joined.Player.Position != 0 {
		t.Errorf("joined-game player %+v", joined.Player)
	}
	if joined.Timestamp.IsZero() {
		t.Error("event missing timestamp")
	}

	c2 := newTestClient(h, "c2")
	act(h, c2, ClientMessage{Type: "join-game", PlayerName: "Bob"})

	broadcast := awaitEvent(t, c1, EventPlayerJoined).(PlayerEventMessage)
	if broadcast.Player.Name != "Bob" {
		t.Errorf("PLAYER_JOINED for %q, want Bob", broadcast.Player.Name)
	}
}

func TestHubRejectsDuplicateNames(t *testing.T) {
	h := startTestHub(nil, &fakeQuestionSource{})

	c1 := newTestClient(h, "c1")
	act(h, c1, ClientMessage{Type: "join-game", PlayerName: "Ann"})
	awaitEvent(t, c1, EventJoinedGame)

	c2 := newTestClient(h, "c2")
	act(h, c2, ClientMessage{Type: "join-game", PlayerName: " ann "})

	errMsg := awaitEvent(t, c2, EventError).(ErrorMessage)
	if errMsg.Message != ErrDuplicateName.Error() {
		t.Errorf("error %q, want %q", errMsg.Message, ErrDuplicateName.Error())
	}

	if snap := h.Snapshot(); len(snap.Players) != 1 {
		t.Errorf("roster size %d, want 1", len(snap.Players))
	}
}

func TestHubAdminJoinsAsSpectator(t *testing.T) {
	h := startTestHub(nil, &fakeQuestionSource{})

	c := newTestClient(h, "c1")
	act(h, c, ClientMessage{Type: "join-game", PlayerName: "admin"})
	awaitEvent(t, c, EventAdminJoined)

	if snap := h.Snapshot(); len(snap.Players) != 0 {
		t.Errorf("admin registered as a player: %+v", snap.Players)
	}
}

func TestHubStartRequiresTwoPlayers(t *testing.T) {
	h := startTestHub(nil, &fakeQuestionSource{})

	c1 := newTestClient(h, "c1")
	act(h, c1, ClientMessage{Type: "join-game", PlayerName: "Ann"})
	awaitEvent(t, c1, EventJoinedGame)

	act(h, c1, ClientMessage{Type: "start-game"})
	errMsg := awaitEvent(t, c1, EventError).(ErrorMessage)
	if errMsg.Message != ErrNotEnoughPlayers.Error() {
		t.Errorf("error %q, want %q", errMsg.Message, ErrNotEnoughPlayers.Error())
	}

	if snap := h.Snapshot(); snap.Status != StatusWaiting {
		t.Errorf("status %s, want waiting", snap.Status)
	}
}

func TestHubStartFixesTurnOrderAndPromptsFirstPlayer(t *testing.T) {
	h := startTestHub(nil, &fakeQuestionSource{})

	c1 := newTestClient(h, "c1")
	act(h, c1, ClientMessage{Type: "join-game", PlayerName: "Ann"})
	awaitEvent(t, c1, EventJoinedGame)

	c2 := newTestClient(h, "c2")
	act(h, c2, ClientMessage{Type: "join-game", PlayerName: "Bob"})
	awaitEvent(t, c2, EventJoinedGame)

	act(h, c1, ClientMessage{Type: "start-game"})

	started := awaitEvent(t, c2, EventGameStarted).(GameStartedMessage)
	if len(started.TurnOrder) != 2 ||
		!slices.Contains(started.TurnOrder, "Ann") ||
		!slices.Contains(started.TurnOrder, "Bob") {
		t.Errorf("turn order %v, want permutation of Ann and Bob", started.TurnOrder)
	}

	snap := h.Snapshot()
	if snap.Status != StatusInProgress {
		t.Fatalf("status %s, want in_progress", snap.Status)
	}
	if !snap.HasAdmin {
		t.Error("start did not record an admin")
	}

	currentClient := c1
	if snap.CurrentPlayer == "Bob" {
		currentClient = c2
	}
	awaitEvent(t, currentClient, EventYourTurn)
}

func TestHubRejectsOutOfTurnRoll(t *testing.T) {
	h, byName, _, next := setupStartedGame(t, nil, &fakeQuestionSource{})

	waiting := byName[next]
	act(h, waiting, ClientMessage{Type: "shake-dice"})

	errMsg := awaitEvent(t, waiting, EventError).(ErrorMessage)
	if errMsg.Message != "Not your turn" {
		t.Errorf("error %q, want not-your-turn", errMsg.Message)
	}
}

func TestHubShakeDiceRollsOnceAndRejectsSecondRoll(t *testing.T) {
	h, byName, current, next := setupStartedGame(t, nil, &fakeQuestionSource{questions: []Question{capitalQuestion()}})

	roller := byName[current]
	act(h, roller, ClientMessage{Type: "shake-dice"})
	awaitEvent(t, roller, EventDiceShaking)

	act(h, roller, ClientMessage{Type: "shake-dice"})
	errMsg := awaitEvent(t, roller, EventError).(ErrorMessage)
	if errMsg.Message != "Already shook dice, answer the question" {
		t.Errorf("error %q, want already-rolled", errMsg.Message)
	}

	rolled := awaitEvent(t, byName[next], EventDiceRolled).(DiceRolledMessage)
	if rolled.DiceValue < 1 || rolled.DiceValue > 6 {
		t.Errorf("dice value %d out of range", rolled.DiceValue)
	}
}

func TestHubQuestionGateWrongAnswer(t *testing.T) {
	h, byName, current, next := setupStartedGame(t, nil, &fakeQuestionSource{questions: []Question{capitalQuestion()}})

	roller := byName[current]
	other := byName[next]

	runOnHub(h, func() {
		player := h.session.CurrentPlayer()
		h.session.LastDiceValue = 3
		h.applyRoll(player, 3)
	})

	question := awaitEvent(t, other, EventQuestionPresented).(QuestionPresentedMessage)
	if question.Question.Text != "Capital of France?" {
		t.Errorf("question text %q", question.Question.Text)
	}
	if want := []string{"London", "Paris", "Rome"}; !slices.Equal(question.Question.Options, want) {
		t.Errorf("options %v, want %v (no correctness flags)", question.Question.Options, want)
	}

	act(h, roller, ClientMessage{Type: "answer-question", Answer: "Rome"})

	validated := awaitEvent(t, other, EventAnswerValidated).(AnswerValidatedMessage)
	if validated.IsCorrect || validated.SelectedAnswer != "Rome" || validated.CorrectAnswer != "Paris" {
		t.Errorf("validation %+v", validated)
	}

	awaitEvent(t, other, EventPlayerStays)
	awaitEvent(t, other, EventTurnStarted)

	snap := h.Snapshot()
	if snap.CurrentPlayer != next {
		t.Errorf("current player %q, want %q", snap.CurrentPlayer, next)
	}
	for _, p := range snap.Players {
		if p.Position != 0 {
			t.Errorf("player %s moved to %d after wrong answer", p.Name, p.Position)
		}
	}
}

func TestHubQuestionGateCorrectAnswerMoves(t *testing.T) {
	h, byName, current, next := setupStartedGame(t, nil, &fakeQuestionSource{questions: []Question{capitalQuestion()}})

	roller := byName[current]
	other := byName[next]

	runOnHub(h, func() {
		player := h.session.CurrentPlayer()
		h.session.LastDiceValue = 3
		h.applyRoll(player, 3)
	})
	awaitEvent(t, other, EventQuestionPresented)

	act(h, roller, ClientMessage{Type: "answer-question", Answer: "Paris"})

	validated := awaitEvent(t, other, EventAnswerValidated).(AnswerValidatedMessage)
	if !validated.IsCorrect {
		t.Fatalf("correct answer judged wrong: %+v", validated)
	}

	for step := 1; step <= 3; step++ {
		stepping := awaitEvent(t, other, EventPlayerStepping).(PlayerSteppingMessage)
		if stepping.StepNumber != step || stepping.TotalSteps != 3 || stepping.CurrentPosition != step {
			t.Errorf("step %d event %+v", step, stepping)
		}
	}

	moved := awaitEvent(t, other, EventPlayerMoved).(PlayerMovedMessage)
	if moved.FinalPosition != 3 || moved.StepsCount != 3 {
		t.Errorf("moved %+v, want final 3 over 3 steps", moved)
	}

	awaitEvent(t, other, EventTurnStarted)
	if snap := h.Snapshot(); snap.CurrentPlayer != next {
		t.Errorf("turn did not advance to %q", next)
	}
}

func TestHubLadderFastPathSkipsQuestion(t *testing.T) {
	h, byName, _, next := setupStartedGame(t, nil, &fakeQuestionSource{questions: []Question{capitalQuestion()}})

	other := byName[next]

	runOnHub(h, func() {
		player := h.session.CurrentPlayer()
		player.Position = 0
		h.session.LastDiceValue = 4
		h.applyRoll(player, 4)
	})

	events := collectEvents(other, 300*time.Millisecond)

	if countType(events, EventQuestionPresented) != 0 {
		t.Error("transport landing should skip the question")
	}

	var positions []int
	for _, e := range events {
		if stepping, ok := e.(PlayerSteppingMessage); ok {
			positions = append(positions, stepping.CurrentPosition)
		}
	}
	if want := []int{1, 2, 3, 4, 14}; !slices.Equal(positions, want) {
		t.Errorf("stepping path %v, want %v", positions, want)
	}

	climbedIndex := typeIndex(events, EventLadderClimbed)
	if climbedIndex == -1 {
		t.Fatal("no LADDER_CLIMBED event")
	}
	climbed := events[climbedIndex].(TransportMessage)
	if climbed.FromPosition != 4 || climbed.ToPosition != 14 {
		t.Errorf("ladder %d -> %d, want 4 -> 14", climbed.FromPosition, climbed.ToPosition)
	}

	if movedIndex := typeIndex(events, EventPlayerMoved); movedIndex > climbedIndex {
		t.Error("PLAYER_MOVED should precede LADDER_CLIMBED")
	}
}

func TestHubSnakeSlide(t *testing.T) {
	h, byName, _, next := setupStartedGame(t, nil, &fakeQuestionSource{questions: []Question{capitalQuestion()}})

	other := byName[next]

	runOnHub(h, func() {
		player := h.session.CurrentPlayer()
		player.Position = 12
		h.session.LastDiceValue = 4
		h.applyRoll(player, 4)
	})

	slid := awaitEvent(t, other, EventSnakeSlid).(TransportMessage)
	if slid.FromPosition != 16 || slid.ToPosition != 6 {
		t.Errorf("snake %d -> %d, want 16 -> 6", slid.FromPosition, slid.ToPosition)
	}
}

func TestHubWinningMoveFinishesGame(t *testing.T) {
	h, byName, current, next := setupStartedGame(t, nil, &fakeQuestionSource{questions: []Question{capitalQuestion()}})

	other := byName[next]

	runOnHub(h, func() {
		player := h.session.CurrentPlayer()
		player.Position = 97
		h.moveWithAnimation(player, 3)
	})

	events := collectEvents(other, 300*time.Millisecond)

	finishedIndex := typeIndex(events, EventGameFinished)
	announcedIndex := typeIndex(events, EventWinnerAnnounced)
	if finishedIndex == -1 || announcedIndex == -1 || announcedIndex < finishedIndex {
		t.Fatalf("want GAME_FINISHED then WINNER_ANNOUNCED, got %v", events)
	}

	if turnIndex := typeIndex(events, EventTurnStarted); turnIndex != -1 {
		t.Error("TURN_STARTED after the game finished")
	}

	winner := events[announcedIndex].(WinnerAnnouncedMessage)
	if winner.Winner.Name != current {
		t.Errorf("winner %q, want %q", winner.Winner.Name, current)
	}

	snap := h.Snapshot()
	if snap.Status != StatusFinished || snap.Winner != current {
		t.Errorf("snapshot %s/%q, want finished/%q", snap.Status, snap.Winner, current)
	}
}

func TestHubAutoRollFiresAfterTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.turnTimeout = 60 * time.Millisecond

	h, byName, _, next := setupStartedGame(t, cfg, &fakeQuestionSource{})

	// park everyone where no roll can land on a transport square, so the
	// stalled empty-bank turn never hands over and re-arms the timer
	runOnHub(h, func() {
		for _, p := range h.session.Players {
			p.Position = 30
		}
	})

	events := collectEvents(byName[next], 500*time.Millisecond)

	if countType(events, EventAutoDiceRoll) != 1 {
		t.Errorf("AUTO_DICE_ROLL count %d, want 1", countType(events, EventAutoDiceRoll))
	}
	if countType(events, EventDiceShaking) != 1 || countType(events, EventDiceRolled) != 1 {
		t.Error("auto roll did not run the shared dice procedure exactly once")
	}
}

func TestHubManualRollCancelsAutoRoll(t *testing.T) {
	cfg := testConfig()
	cfg.turnTimeout = 80 * time.Millisecond

	h, byName, current, next := setupStartedGame(t, cfg, &fakeQuestionSource{})

	runOnHub(h, func() {
		for _, p := range h.session.Players {
			p.Position = 30
		}
	})

	act(h, byName[current], ClientMessage{Type: "shake-dice"})

	events := collectEvents(byName[next], 400*time.Millisecond)

	if countType(events, EventAutoDiceRoll) != 0 {
		t.Error("stale auto roll fired after a manual roll")
	}
	if countType(events, EventDiceShaking) != 1 || countType(events, EventDiceRolled) != 1 {
		t.Error("manual roll did not produce exactly one dice sequence")
	}
}

// blockingQuestionSource holds every fetch until released, standing in
// for a slow store.
type blockingQuestionSource struct {
	release   chan struct{}
	questions []Question
}

func (b *blockingQuestionSource) All() ([]Question, error) {
	<-b.release
	return b.questions, nil
}

func TestHubQuestionFetchDroppedWhenRollerLeaves(t *testing.T) {
	src := &blockingQuestionSource{
		release:   make(chan struct{}),
		questions: []Question{capitalQuestion()},
	}
	h, byName, current, next := setupStartedGame(t, nil, src)

	other := byName[next]

	runOnHub(h, func() {
		player := h.session.CurrentPlayer()
		h.session.LastDiceValue = 3
		h.applyRoll(player, 3)
	})

	// the roller vanishes while the fetch is still in flight
	h.unreg <- byName[current]
	awaitEvent(t, other, EventPlayerLeft)
	awaitEvent(t, other, EventTurnStarted)
	drain(other)

	close(src.release)

	events := collectEvents(other, 200*time.Millisecond)
	if countType(events, EventQuestionPresented) != 0 {
		t.Error("question posed to a player who never rolled")
	}

	snap := h.Snapshot()
	if snap.WaitingForAnswer || snap.CurrentQuestion != nil {
		t.Errorf("stale fetch mutated the turn: %+v", snap)
	}
	if snap.CurrentPlayer != next {
		t.Errorf("current player %q, want %q", snap.CurrentPlayer, next)
	}
}

func TestHubAutoRollSkippedWhileAwaitingAnswer(t *testing.T) {
	cfg := testConfig()
	cfg.turnTimeout = 40 * time.Millisecond

	h, byName, _, next := setupStartedGame(t, cfg, &fakeQuestionSource{})

	runOnHub(h, func() {
		h.session.WaitingForAnswer = true
	})

	events := collectEvents(byName[next], 300*time.Millisecond)
	if countType(events, EventAutoDiceRoll) != 0 {
		t.Error("timeout rolled the dice while an answer was pending")
	}
}

func TestHubAnswerWithoutQuestionRejected(t *testing.T) {
	h, byName, current, _ := setupStartedGame(t, nil, &fakeQuestionSource{})

	roller := byName[current]
	act(h, roller, ClientMessage{Type: "answer-question", Answer: "Paris"})

	errMsg := awaitEvent(t, roller, EventError).(ErrorMessage)
	if errMsg.Message != "No question to answer" {
		t.Errorf("error %q, want no-question-to-answer", errMsg.Message)
	}
}

func TestHubEmptyQuestionBankStallsTurn(t *testing.T) {
	h, byName, current, next := setupStartedGame(t, nil, &fakeQuestionSource{})

	other := byName[next]

	runOnHub(h, func() {
		player := h.session.CurrentPlayer()
		h.session.LastDiceValue = 3
		h.applyRoll(player, 3)
	})

	events := collectEvents(other, 200*time.Millisecond)
	if countType(events, EventQuestionPresented) != 0 {
		t.Error("question presented from an empty bank")
	}

	snap := h.Snapshot()
	if snap.WaitingForAnswer {
		t.Error("waitingForAnswer set with no question posed")
	}
	if snap.CurrentPlayer != current {
		t.Error("turn advanced while stalled")
	}
}

func TestHubDisconnectHandsTurnOver(t *testing.T) {
	h, byName, current, next := setupStartedGame(t, nil, &fakeQuestionSource{})

	other := byName[next]

	h.unreg <- byName[current]

	left := awaitEvent(t, other, EventPlayerLeft).(PlayerEventMessage)
	if left.Player.Name != current {
		t.Errorf("PLAYER_LEFT for %q, want %q", left.Player.Name, current)
	}

	awaitEvent(t, other, EventTurnStarted)
	snap := h.Snapshot()
	if snap.CurrentPlayer != next {
		t.Errorf("turn holder %q after disconnect, want %q", snap.CurrentPlayer, next)
	}
	if len(snap.Players) != 1 {
		t.Errorf("roster size %d, want 1", len(snap.Players))
	}
}

func TestHubRestartDisconnectsEveryoneAndResets(t *testing.T) {
	cfg := testConfig()
	cfg.turnTimeout = 50 * time.Millisecond

	h, byName, _, _ := setupStartedGame(t, cfg, &fakeQuestionSource{})

	act(h, byName["Ann"], ClientMessage{Type: "restart-game"})

	for _, c := range byName {
		events := collectEvents(c, time.Second)
		if countType(events, EventGameRestarted) != 1 {
			t.Errorf("client %s missed GAME_RESTARTED", c.id)
		}
		// channels are closed once the room is torn down
		if _, ok := <-c.send; ok {
			t.Errorf("client %s channel still open after restart", c.id)
		}
	}

	snap := h.Snapshot()
	if snap.Status != StatusWaiting || len(snap.Players) != 0 || snap.HasAdmin {
		t.Errorf("session not fresh after restart: %+v", snap)
	}

	// the old session's turn timer must not fire into the new one
	fresh := newTestClient(h, "c9")
	act(h, fresh, ClientMessage{Type: "join-game", PlayerName: "Cora"})
	awaitEvent(t, fresh, EventJoinedGame)

	events := collectEvents(fresh, 200*time.Millisecond)
	if countType(events, EventAutoDiceRoll) != 0 || countType(events, EventDiceShaking) != 0 {
		t.Error("stale timer fired after restart")
	}
}
