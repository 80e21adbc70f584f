package main

import (
	"fmt"
	"maps"
	"net/http"
	"slices"

	"github.com/julienschmidt/httprouter"
)

const (
	boardSize    = 100
	boardRows    = 10
	boardColumns = 10
)

// The fixed board wiring: ladder bottom -> top and snake head -> tail.
// Every session plays on this layout.
var (
	boardLadders = map[int]int{
		4: 14, 7: 17, 9: 31, 20: 38, 28: 84, 40: 59, 51: 67, 63: 81, 71: 91,
	}
	boardSnakes = map[int]int{
		16: 6, 48: 26, 49: 11, 56: 53, 62: 19, 64: 60,
	}

	snakeColors  = []string{"#FF4444", "#FF6B6B", "#FF8E8E", "#FFB1B1"}
	ladderColors = []string{"#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7"}
)

type gridPos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// squareCoords maps a linear square number onto the 10x10 grid. Square 1
// sits bottom-left (row 9, col 0) and numbering snakes back and forth on
// each row up to 100 at top-left. Out-of-range squares map to (-1, -1).
func squareCoords(square int) gridPos {
	if square < 1 || square > boardSize {
		return gridPos{Row: -1, Col: -1}
	}

	adjusted := square - 1
	row := (boardRows - 1) - adjusted/boardColumns

	var col int
	if ((boardRows-1)-row)%2 == 0 {
		col = adjusted % boardColumns
	} else {
		col = (boardColumns - 1) - adjusted%boardColumns
	}

	return gridPos{Row: row, Col: col}
}

// boardLayout returns the grid as rendered, top row first: 100..91, then
// 81..90, and so on down to 10..1.
func boardLayout() [][]int {
	board := make([][]int, 0, boardRows)
	num := boardSize

	for row := 0; row < boardRows; row++ {
		current := make([]int, boardColumns)
		if row%2 == 0 {
			for col := 0; col < boardColumns; col++ {
				current[col] = num
				num--
			}
		} else {
			for col := boardColumns - 1; col >= 0; col-- {
				current[col] = num
				num--
			}
		}
		board = append(board, current)
	}

	return board
}

func boardNumbers() map[int]gridPos {
	positions := make(map[int]gridPos, boardSize)
	for square := 1; square <= boardSize; square++ {
		positions[square] = squareCoords(square)
	}
	return positions
}

func snakeColor(head int) string {
	return snakeColors[head%len(snakeColors)]
}

func ladderColor(bottom int) string {
	return ladderColors[bottom%len(ladderColors)]
}

type boardSnake struct {
	ID    string `json:"id"`
	Head  int    `json:"head"`
	Tail  int    `json:"tail"`
	Color string `json:"color"`
}

type boardLadder struct {
	ID     string `json:"id"`
	Bottom int    `json:"bottom"`
	Top    int    `json:"top"`
	Color  string `json:"color"`
}

type specialSquare struct {
	Position    int    `json:"position"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type boardGrid struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

type boardDocument struct {
	BoardSize      int             `json:"boardSize"`
	Grid           boardGrid       `json:"grid"`
	Snakes         []boardSnake    `json:"snakes"`
	Ladders        []boardLadder   `json:"ladders"`
	SpecialSquares []specialSquare `json:"specialSquares"`
	BoardLayout    [][]int         `json:"boardLayout"`
}

func buildBoardDocument() boardDocument {
	doc := boardDocument{
		BoardSize:   boardSize,
		Grid:        boardGrid{Rows: boardRows, Columns: boardColumns},
		BoardLayout: boardLayout(),
	}

	for _, head := range slices.Sorted(maps.Keys(boardSnakes)) {
		doc.Snakes = append(doc.Snakes, boardSnake{
			ID:    fmt.Sprintf("snake_%d", head),
			Head:  head,
			Tail:  boardSnakes[head],
			Color: snakeColor(head),
		})
		doc.SpecialSquares = append(doc.SpecialSquares, specialSquare{
			Position:    head,
			Type:        "snake_head",
			Description: fmt.Sprintf("Snake head at %d", head),
		})
	}

	for _, bottom := range slices.Sorted(maps.Keys(boardLadders)) {
		doc.Ladders = append(doc.Ladders, boardLadder{
			ID:     fmt.Sprintf("ladder_%d", bottom),
			Bottom: bottom,
			Top:    boardLadders[bottom],
			Color:  ladderColor(bottom),
		})
		doc.SpecialSquares = append(doc.SpecialSquares, specialSquare{
			Position:    bottom,
			Type:        "ladder_bottom",
			Description: fmt.Sprintf("Ladder bottom at %d", bottom),
		})
	}

	return doc
}

type plotCoordinates struct {
	From gridPos `json:"from"`
	To   gridPos `json:"to"`
}

type plotElement struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	Head        int             `json:"head,omitempty"`
	Tail        int             `json:"tail,omitempty"`
	Bottom      int             `json:"bottom,omitempty"`
	Top         int             `json:"top,omitempty"`
	Coordinates plotCoordinates `json:"coordinates"`
	Color       string          `json:"color"`
	Description string          `json:"description"`
}

type plotPlayer struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Position        int     `json:"position"`
	Coordinates     gridPos `json:"coordinates"`
	IsCurrentPlayer bool    `json:"isCurrentPlayer"`
}

type plotGameInfo struct {
	Status           GameStatus `json:"status"`
	CurrentPlayer    string     `json:"currentPlayer"`
	DiceValue        int        `json:"diceValue"`
	WaitingForAnswer bool       `json:"waitingForAnswer"`
	Winner           string     `json:"winner"`
	TotalPlayers     int        `json:"totalPlayers"`
}

type plotDocument struct {
	Board struct {
		Size int       `json:"size"`
		Grid boardGrid `json:"grid"`
	} `json:"board"`
	Elements struct {
		Snakes  []plotElement `json:"snakes"`
		Ladders []plotElement `json:"ladders"`
	} `json:"elements"`
	Players      []plotPlayer    `json:"players"`
	GameInfo     plotGameInfo    `json:"gameInfo"`
	BoardNumbers map[int]gridPos `json:"boardNumbers"`
}

func buildPlotDocument(snap gameSnapshot) plotDocument {
	var doc plotDocument

	doc.Board.Size = boardSize
	doc.Board.Grid = boardGrid{Rows: boardRows, Columns: boardColumns}
	doc.BoardNumbers = boardNumbers()

	for _, head := range slices.Sorted(maps.Keys(boardSnakes)) {
		tail := boardSnakes[head]
		doc.Elements.Snakes = append(doc.Elements.Snakes, plotElement{
			Type: "snake",
			ID:   fmt.Sprintf("snake_%d", head),
			Head: head,
			Tail: tail,
			Coordinates: plotCoordinates{
				From: squareCoords(head),
				To:   squareCoords(tail),
			},
			Color:       snakeColor(head),
			Description: fmt.Sprintf("Snake from %d to %d", head, tail),
		})
	}

	for _, bottom := range slices.Sorted(maps.Keys(boardLadders)) {
		top := boardLadders[bottom]
		doc.Elements.Ladders = append(doc.Elements.Ladders, plotElement{
			Type:   "ladder",
			ID:     fmt.Sprintf("ladder_%d", bottom),
			Bottom: bottom,
			Top:    top,
			Coordinates: plotCoordinates{
				From: squareCoords(bottom),
				To:   squareCoords(top),
			},
			Color:       ladderColor(bottom),
			Description: fmt.Sprintf("Ladder from %d to %d", bottom, top),
		})
	}

	doc.Players = make([]plotPlayer, 0, len(snap.Players))
	for _, p := range snap.Players {
		doc.Players = append(doc.Players, plotPlayer{
			ID:              p.ID,
			Name:            p.Name,
			Position:        p.Position,
			Coordinates:     squareCoords(p.Position),
			IsCurrentPlayer: p.Name == snap.CurrentPlayer && snap.CurrentPlayer != "",
		})
	}

	doc.GameInfo = plotGameInfo{
		Status:           snap.Status,
		CurrentPlayer:    snap.CurrentPlayer,
		DiceValue:        snap.DiceValue,
		WaitingForAnswer: snap.WaitingForAnswer,
		Winner:           snap.Winner,
		TotalPlayers:     len(snap.Players),
	}

	return doc
}

func serveBoard(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, buildBoardDocument())
	}
}

func serveBoardPlot(cfg *Config, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, buildPlotDocument(hub.Snapshot()))
	}
}

func registerBoardRoutes(cfg *Config, hub *Hub, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/board", serveBoard(cfg))
	mux.GET(cfg.prefix+"/board/plot", serveBoardPlot(cfg, hub))
}
