package prompt

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/promptpipe/promptpipe/errors"
	id "github.com/teranos/vanity-id"
)

const promptIDLength = 8

// Store handles prompt persistence.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore creates a prompt store. A nil logger disables logging.
func NewStore(db *sql.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: db, logger: logger}
}

// CreatePrompt validates and inserts a prompt, assigning its ID and timestamps.
func (s *Store) CreatePrompt(p *Prompt) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}

	randomPart, err := id.GenerateRandomID(promptIDLength)
	if err != nil {
		return errors.Wrap(err, "failed to generate prompt id")
	}
	p.ID = "pmt_" + randomPart

	now := time.Now().UTC().Format(time.RFC3339)
	p.CreatedAt = now
	p.UpdatedAt = now

	var description, maxTokens, schedule interface{}
	if p.Description != nil {
		description = *p.Description
	}
	if p.MaxTokens != nil {
		maxTokens = *p.MaxTokens
	}
	if p.Schedule != nil {
		schedule = *p.Schedule
	}

	_, err = s.db.Exec(`
		INSERT INTO prompts (
			id, name, description, template, model,
			temperature, max_tokens, top_p, frequency_penalty, presence_penalty,
			webhook_url, schedule, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, description, p.Template, p.Model,
		p.Temperature, maxTokens, p.TopP, p.FrequencyPenalty, p.PresencePenalty,
		p.WebhookURL, schedule, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert prompt")
	}

	s.logger.Debugw("Prompt created", "prompt_id", p.ID, "name", p.Name)
	return nil
}

// GetPrompt retrieves a prompt by ID.
func (s *Store) GetPrompt(promptID string) (*Prompt, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, template, model,
			temperature, max_tokens, top_p, frequency_penalty, presence_penalty,
			webhook_url, schedule, active, created_at, updated_at
		FROM prompts WHERE id = ?`, promptID)

	p, err := scanPrompt(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("prompt not found: %s", promptID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get prompt")
	}
	return p, nil
}

// ListPrompts returns all prompts, newest first.
func (s *Store) ListPrompts() ([]*Prompt, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, template, model,
			temperature, max_tokens, top_p, frequency_penalty, presence_penalty,
			webhook_url, schedule, active, created_at, updated_at
		FROM prompts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list prompts")
	}
	defer rows.Close()

	var prompts []*Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan prompt row")
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// UpdatePrompt validates and saves changes to an existing prompt.
// The ID, CreatedAt, and UpdatedAt fields are managed here, not by callers.
func (s *Store) UpdatePrompt(p *Prompt) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	var description, maxTokens, schedule interface{}
	if p.Description != nil {
		description = *p.Description
	}
	if p.MaxTokens != nil {
		maxTokens = *p.MaxTokens
	}
	if p.Schedule != nil {
		schedule = *p.Schedule
	}

	result, err := s.db.Exec(`
		UPDATE prompts SET
			name = ?, description = ?, template = ?, model = ?,
			temperature = ?, max_tokens = ?, top_p = ?, frequency_penalty = ?, presence_penalty = ?,
			webhook_url = ?, schedule = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, description, p.Template, p.Model,
		p.Temperature, maxTokens, p.TopP, p.FrequencyPenalty, p.PresencePenalty,
		p.WebhookURL, schedule, p.Active, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update prompt")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("prompt not found: %s", p.ID)
	}

	s.logger.Debugw("Prompt updated", "prompt_id", p.ID)
	return nil
}

// DeletePrompt removes a prompt. Its execution records go with it (cascade).
func (s *Store) DeletePrompt(promptID string) error {
	result, err := s.db.Exec("DELETE FROM prompts WHERE id = ?", promptID)
	if err != nil {
		return errors.Wrap(err, "failed to delete prompt")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("prompt not found: %s", promptID)
	}

	s.logger.Debugw("Prompt deleted", "prompt_id", promptID)
	return nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrompt(row scanner) (*Prompt, error) {
	var p Prompt
	var description, schedule sql.NullString
	var maxTokens sql.NullInt64

	err := row.Scan(
		&p.ID, &p.Name, &description, &p.Template, &p.Model,
		&p.Temperature, &maxTokens, &p.TopP, &p.FrequencyPenalty, &p.PresencePenalty,
		&p.WebhookURL, &schedule, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		p.Description = &description.String
	}
	if maxTokens.Valid {
		tokens := int(maxTokens.Int64)
		p.MaxTokens = &tokens
	}
	if schedule.Valid {
		p.Schedule = &schedule.String
	}

	return &p, nil
}
