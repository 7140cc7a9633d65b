package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Message is one stored conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Topic is one discussed subject with its mention count.
type Topic struct {
	Topic    string `json:"topic"`
	Mentions int    `json:"mentions"`
}

// Profile is what the service has learned about a session's user.
type Profile struct {
	SessionID      string    `json:"session_id"`
	UserType       string    `json:"user_type"`
	Language       string    `json:"language"`
	MedicalContext string    `json:"medical_context,omitempty"`
	TotalMessages  int       `json:"total_messages"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// Stats summarizes one session across experts.
type Stats struct {
	SessionID       string         `json:"session_id"`
	UserType        string         `json:"user_type"`
	TotalMessages   int            `json:"total_messages"`
	ExpertsUsed     map[string]int `json:"experts_used"`
	TopicsDiscussed int            `json:"topics_discussed"`
	FirstSeen       time.Time      `json:"first_seen"`
	LastSeen        time.Time      `json:"last_seen"`
}

// userTypePatterns classify the user from how they write. Check order
// matters: students mention symptoms too, so the more specific profiles
// come first.
var userTypePatterns = []struct {
	userType string
	markers  []string
}{
	{"student", []string{"étudiant", "student", "cours", "examen", "fac", "université", "médecine", "infirmier"}},
	{"caregiver", []string{"mon père", "ma mère", "mon enfant", "proche", "aider", "accompagner", "famille"}},
	{"professional", []string{"médecin", "infirmière", "pharmacien", "soignant", "clinique", "hôpital", "professionnel"}},
	{"patient", []string{"j'ai mal", "symptôme", "douleur", "malade", "médicament", "traitement", "diagnostic"}},
}

var userTypeNames = map[string]string{
	"student":      "Étudiant en santé",
	"patient":      "Patient/Particulier",
	"caregiver":    "Aidant/Proche",
	"professional": "Professionnel de santé",
}

var messageTopics = map[string][]string{
	"diabetes":     {"diabète", "diabetes", "glycémie", "insuline"},
	"hypertension": {"hypertension", "tension", "pression artérielle"},
	"medication":   {"médicament", "traitement", "posologie", "effets secondaires"},
	"symptoms":     {"symptôme", "douleur", "fièvre", "fatigue"},
	"nutrition":    {"alimentation", "régime", "nutrition", "vitamines"},
	"crypto":       {"bitcoin", "ethereum", "crypto", "blockchain"},
	"stocks":       {"action", "bourse", "cac", "nasdaq"},
	"investment":   {"investir", "placement", "épargne"},
}

const (
	historyLimit        = 10
	topicLimit          = 5
	contextMessageLimit = 200
)

// Store persists conversations, profiles and topics in Postgres.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// New opens a connection to Postgres and verifies it.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing connection.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: log.New(log.Writer(), "[MEMORY] ", log.LstdFlags),
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// AddMessage stores one conversation turn and updates the session profile.
// User messages additionally feed the user-type detection and topic
// extraction.
func (s *Store) AddMessage(ctx context.Context, sessionID, expertID, role, message string, metadata map[string]interface{}) error {
	var meta []byte
	if metadata != nil {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (session_id, expert_id, role, message, metadata) VALUES ($1, $2, $3, $4, $5)`,
		sessionID, expertID, role, message, nullableBytes(meta))
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (session_id, total_messages) VALUES ($1, 1)
		 ON CONFLICT (session_id) DO UPDATE SET total_messages = user_profiles.total_messages + 1, last_seen = now()`,
		sessionID)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if role != "user" {
		return nil
	}

	if userType := detectUserType(message); userType != "" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE user_profiles SET user_type = $2 WHERE session_id = $1 AND (user_type IS NULL OR user_type = '')`,
			sessionID, userType)
		if err != nil {
			return fmt.Errorf("update user type: %w", err)
		}
	}

	for _, topic := range extractTopics(message) {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO topics_discussed (session_id, expert_id, topic) VALUES ($1, $2, $3)
			 ON CONFLICT (session_id, expert_id, topic) DO UPDATE SET mention_count = topics_discussed.mention_count + 1, last_mentioned = now()`,
			sessionID, expertID, topic)
		if err != nil {
			return fmt.Errorf("upsert topic %s: %w", topic, err)
		}
	}
	return nil
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func detectUserType(message string) string {
	lower := strings.ToLower(message)
	for _, entry := range userTypePatterns {
		for _, marker := range entry.markers {
			if strings.Contains(lower, marker) {
				return entry.userType
			}
		}
	}
	return ""
}

func extractTopics(message string) []string {
	lower := strings.ToLower(message)
	var topics []string
	for _, topic := range []string{
		"diabetes", "hypertension", "medication", "symptoms", "nutrition",
		"crypto", "stocks", "investment",
	} {
		for _, kw := range messageTopics[topic] {
			if strings.Contains(lower, kw) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}

// History returns the latest limit turns in chronological order.
func (s *Store) History(ctx context.Context, sessionID, expertID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = historyLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, message, created_at FROM conversations
		 WHERE session_id = $1 AND expert_id = $2 ORDER BY created_at DESC LIMIT $3`,
		sessionID, expertID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}
	// stored newest first, returned oldest first
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// Topics returns the most discussed subjects for a session and expert.
func (s *Store) Topics(ctx context.Context, sessionID, expertID string) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT topic, mention_count FROM topics_discussed
		 WHERE session_id = $1 AND expert_id = $2 ORDER BY mention_count DESC, topic LIMIT $3`,
		sessionID, expertID, topicLimit)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.Topic, &t.Mentions); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// GetProfile returns the stored profile for a session.
func (s *Store) GetProfile(ctx context.Context, sessionID string) (Profile, error) {
	var p Profile
	var userType, medicalContext sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_type, language, medical_context, total_messages, first_seen, last_seen
		 FROM user_profiles WHERE session_id = $1`,
		sessionID).Scan(&p.SessionID, &userType, &p.Language, &medicalContext, &p.TotalMessages, &p.FirstSeen, &p.LastSeen)
	if err != nil {
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}
	p.UserType = userType.String
	p.MedicalContext = medicalContext.String
	return p, nil
}

// BuildContext renders profile, topics and recent history into the prompt
// fragment that precedes a synthesis call. Every section is optional; a
// fresh session yields an empty string.
func (s *Store) BuildContext(ctx context.Context, sessionID, expertID string) (string, error) {
	var sections []string

	profile, err := s.GetProfile(ctx, sessionID)
	if err == nil {
		var parts []string
		if name := userTypeNames[profile.UserType]; name != "" {
			parts = append(parts, "Profil: "+name)
		}
		if profile.Language != "" && profile.Language != "fr" {
			parts = append(parts, "Langue: "+profile.Language)
		}
		if profile.MedicalContext != "" {
			parts = append(parts, "Contexte médical: "+profile.MedicalContext)
		}
		if len(parts) > 0 {
			sections = append(sections, "[PROFIL UTILISATEUR]: "+strings.Join(parts, " | "))
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	topics, err := s.Topics(ctx, sessionID, expertID)
	if err != nil {
		return "", err
	}
	if len(topics) > 0 {
		var parts []string
		for _, t := range topics {
			parts = append(parts, fmt.Sprintf("%s (%d)", t.Topic, t.Mentions))
		}
		sections = append(sections, "[SUJETS ABORDÉS]: "+strings.Join(parts, ", "))
	}

	history, err := s.History(ctx, sessionID, expertID, historyLimit)
	if err != nil {
		return "", err
	}
	if len(history) > 0 {
		lines := []string{"[HISTORIQUE CONVERSATION]"}
		for _, m := range history {
			content := m.Content
			// rune-wise so accented French text is never cut mid-sequence
			if r := []rune(content); len(r) > contextMessageLimit {
				content = string(r[:contextMessageLimit]) + "..."
			}
			prefix := "A"
			if m.Role == "user" {
				prefix = "U"
			}
			lines = append(lines, prefix+": "+content)
		}
		lines = append(lines, "[FIN HISTORIQUE]")
		lines = append(lines, "INSTRUCTIONS: Utilise cet historique. Ne répète pas les informations déjà données.")
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n"), nil
}

// SessionStats aggregates one session's activity across experts.
func (s *Store) SessionStats(ctx context.Context, sessionID string) (Stats, error) {
	stats := Stats{SessionID: sessionID, ExpertsUsed: map[string]int{}}

	profile, err := s.GetProfile(ctx, sessionID)
	if err != nil {
		return Stats{}, err
	}
	stats.UserType = profile.UserType
	stats.TotalMessages = profile.TotalMessages
	stats.FirstSeen = profile.FirstSeen
	stats.LastSeen = profile.LastSeen

	rows, err := s.db.QueryContext(ctx,
		`SELECT expert_id, COUNT(*) FROM conversations WHERE session_id = $1 GROUP BY expert_id`,
		sessionID)
	if err != nil {
		return Stats{}, fmt.Errorf("query experts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var expert string
		var count int
		if err := rows.Scan(&expert, &count); err != nil {
			return Stats{}, fmt.Errorf("scan expert: %w", err)
		}
		stats.ExpertsUsed[expert] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM topics_discussed WHERE session_id = $1`,
		sessionID).Scan(&stats.TopicsDiscussed)
	if err != nil {
		return Stats{}, fmt.Errorf("count topics: %w", err)
	}
	return stats, nil
}
