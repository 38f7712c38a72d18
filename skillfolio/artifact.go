package skillfolio

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/gigboard/dispatch/errors"
)

// Artifact is a computed skillfolio document for a user.
type Artifact struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	Document    json.RawMessage `json:"document"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// ArtifactStore persists computed artifacts.
type ArtifactStore struct {
	db *sql.DB
}

// NewArtifactStore creates an artifact store over the given database.
func NewArtifactStore(db *sql.DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// Latest returns the most recently generated artifact for a user, or nil
// when none exists.
func (s *ArtifactStore) Latest(userID int64) (*Artifact, error) {
	query := `
		SELECT id, user_id, document, generated_at
		FROM skillfolio_artifacts
		WHERE user_id = ?
		ORDER BY generated_at DESC
		LIMIT 1
	`

	var a Artifact
	var document string
	err := s.db.QueryRow(query, userID).Scan(&a.ID, &a.UserID, &document, &a.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load latest artifact")
	}

	a.Document = []byte(document)
	return &a, nil
}

// Save persists a newly generated artifact and fills in its row id.
func (s *ArtifactStore) Save(a *Artifact) error {
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = time.Now()
	}

	result, err := s.db.Exec(
		`INSERT INTO skillfolio_artifacts (user_id, document, generated_at) VALUES (?, ?, ?)`,
		a.UserID, string(a.Document), a.GeneratedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save artifact")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get artifact id")
	}
	a.ID = id

	return nil
}
