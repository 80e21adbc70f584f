package main

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrAnswerInvariant = errors.New("exactly one answer must be correct")

// AnswerMap maps answer text to its correctness flag. It serializes to a
// plain JSON object both on the wire and in the database column.
type AnswerMap map[string]bool

func (m AnswerMap) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *AnswerMap) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = nil
		return nil
	default:
		return fmt.Errorf("unsupported answers column type %T", value)
	}
}

// Correct returns the single answer marked correct.
func (m AnswerMap) Correct() (string, bool) {
	for text, ok := range m {
		if ok {
			return text, true
		}
	}
	return "", false
}

func (m AnswerMap) validate() error {
	correct := 0
	for _, ok := range m {
		if ok {
			correct++
		}
	}
	if correct != 1 {
		return ErrAnswerInvariant
	}
	return nil
}

// Question is one trivia entry in the bank. Exactly one answer is correct;
// the write boundary enforces it so game logic never has to.
type Question struct {
	ID      string    `gorm:"primaryKey" json:"id"`
	Text    string    `gorm:"not null" json:"question_text"`
	Answers AnswerMap `gorm:"type:text;not null" json:"answers"`
}

type createQuestionRequest struct {
	Text    string    `json:"question_text"`
	Answers AnswerMap `json:"answers"`
}

type updateQuestionRequest struct {
	Text    *string   `json:"question_text"`
	Answers AnswerMap `json:"answers"`
}

// QuestionStore is the sqlite-backed question bank. It doubles as the game
// hub's question source.
type QuestionStore struct {
	db *gorm.DB
}

func openQuestionStore(path string) (*QuestionStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open question store: %w", err)
	}

	if err := db.AutoMigrate(&Question{}); err != nil {
		return nil, fmt.Errorf("migrate question store: %w", err)
	}

	return &QuestionStore{db: db}, nil
}

func (s *QuestionStore) All() ([]Question, error) {
	var questions []Question
	if err := s.db.Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (s *QuestionStore) Get(id string) (*Question, error) {
	var question Question
	if err := s.db.First(&question, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (s *QuestionStore) Create(req createQuestionRequest) (*Question, error) {
	if err := req.Answers.validate(); err != nil {
		return nil, err
	}

	question := &Question{
		ID:      uuid.NewString(),
		Text:    req.Text,
		Answers: req.Answers,
	}
	if err := s.db.Create(question).Error; err != nil {
		return nil, err
	}

	return question, nil
}

func (s *QuestionStore) Update(id string, req updateQuestionRequest) (*Question, error) {
	if req.Answers != nil {
		if err := req.Answers.validate(); err != nil {
			return nil, err
		}
	}

	question, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Text != nil {
		question.Text = *req.Text
	}
	if req.Answers != nil {
		question.Answers = req.Answers
	}

	if err := s.db.Save(question).Error; err != nil {
		return nil, err
	}

	return question, nil
}

func (s *QuestionStore) Delete(id string) error {
	result := s.db.Delete(&Question{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(cfg *Config, w http.ResponseWriter, status int, message string) {
	writeJSON(cfg, w, status, map[string]string{"error": message})
}

func serveQuestions(cfg *Config, store *QuestionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		questions, err := store.All()
		if err != nil {
			writeJSONError(cfg, w, http.StatusInternalServerError, "Failed to fetch questions")
			return
		}

		writeJSON(cfg, w, http.StatusOK, questions)
	}
}

func serveQuestion(cfg *Config, store *QuestionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		question, err := store.Get(p.ByName("id"))
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			writeJSONError(cfg, w, http.StatusNotFound, "Question not found")
		case err != nil:
			writeJSONError(cfg, w, http.StatusInternalServerError, "Failed to fetch question")
		default:
			writeJSON(cfg, w, http.StatusOK, question)
		}
	}
}

func createQuestion(cfg *Config, store *QuestionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createQuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(cfg, w, http.StatusBadRequest, "Invalid request body")
			return
		}

		question, err := store.Create(req)
		switch {
		case errors.Is(err, ErrAnswerInvariant):
			writeJSONError(cfg, w, http.StatusBadRequest, err.Error())
		case err != nil:
			writeJSONError(cfg, w, http.StatusInternalServerError, "Failed to create question")
		default:
			logf(cfg, "QUESTIONS: Created question %s", question.ID)
			writeJSON(cfg, w, http.StatusCreated, question)
		}
	}
}

func updateQuestion(cfg *Config, store *QuestionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var req updateQuestionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(cfg, w, http.StatusBadRequest, "Invalid request body")
			return
		}

		question, err := store.Update(p.ByName("id"), req)
		switch {
		case errors.Is(err, ErrAnswerInvariant):
			writeJSONError(cfg, w, http.StatusBadRequest, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			writeJSONError(cfg, w, http.StatusNotFound, "Question not found")
		case err != nil:
			writeJSONError(cfg, w, http.StatusInternalServerError, "Failed to update question")
		default:
			logf(cfg, "QUESTIONS: Updated question %s", question.ID)
			writeJSON(cfg, w, http.StatusOK, question)
		}
	}
}

func deleteQuestion(cfg *Config, store *QuestionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		err := store.Delete(p.ByName("id"))
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			writeJSONError(cfg, w, http.StatusNotFound, "Question not found")
		case err != nil:
			writeJSONError(cfg, w, http.StatusInternalServerError, "Failed to delete question")
		default:
			logf(cfg, "QUESTIONS: Deleted question %s", p.ByName("id"))
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func registerQuestionRoutes(cfg *Config, store *QuestionStore, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/questions", serveQuestions(cfg, store))
	mux.GET(cfg.prefix+"/questions/:id", serveQuestion(cfg, store))
	mux.POST(cfg.prefix+"/questions", createQuestion(cfg, store))
	mux.PUT(cfg.prefix+"/questions/:id", updateQuestion(cfg, store))
	mux.DELETE(cfg.prefix+"/questions/:id", deleteQuestion(cfg, store))
}
