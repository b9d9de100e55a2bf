package run

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promptpipe/promptpipe/errors"
)

// List pagination bounds
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// RecordStore handles execution record persistence. Records are append-only;
// there is no update or delete, only cascade removal with the owning prompt.
type RecordStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewRecordStore creates an execution record store. A nil logger disables logging.
func NewRecordStore(db *sql.DB, logger *zap.SugaredLogger) *RecordStore {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RecordStore{db: db, logger: logger}
}

// CreateRecord persists a record, assigning its ID and timestamp.
func (s *RecordStore) CreateRecord(rec *Record) error {
	rec.ID = uuid.New().String()
	rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	var inputData, webhookStatus, webhookBody, errorMessage interface{}
	if rec.InputData != nil {
		inputData = string(rec.InputData)
	}
	if rec.WebhookStatus != nil {
		webhookStatus = *rec.WebhookStatus
	}
	if rec.WebhookBody != nil {
		webhookBody = *rec.WebhookBody
	}
	if rec.ErrorMessage != nil {
		errorMessage = *rec.ErrorMessage
	}

	_, err := s.db.Exec(`
		INSERT INTO execution_records (
			id, prompt_id, trigger_kind, input_data, rendered_prompt,
			completion_response, webhook_response_status, webhook_response_body,
			execution_status, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.PromptID, string(rec.Trigger), inputData, rec.RenderedPrompt,
		string(rec.Response), webhookStatus, webhookBody,
		string(rec.Status), errorMessage, rec.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert execution record")
	}

	s.logger.Debugw("Execution record created",
		"record_id", rec.ID,
		"prompt_id", rec.PromptID,
		"trigger_kind", rec.Trigger,
		"execution_status", rec.Status,
	)
	return nil
}

// GetRecord retrieves an execution record by ID.
func (s *RecordStore) GetRecord(recordID string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT id, prompt_id, trigger_kind, input_data, rendered_prompt,
			completion_response, webhook_response_status, webhook_response_body,
			execution_status, error_message, created_at
		FROM execution_records WHERE id = ?`, recordID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("execution record not found: %s", recordID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution record")
	}
	return rec, nil
}

// ListRecords returns execution records newest first, plus the total count
// matching the filters. An empty promptID or statusFilter means no filter.
func (s *RecordStore) ListRecords(promptID string, limit, offset int, statusFilter string) ([]*Record, int, error) {
	if statusFilter != "" && statusFilter != string(StatusSuccess) && statusFilter != string(StatusFailed) {
		return nil, 0, errors.NewInvalidRequestError("invalid status filter: %s", statusFilter)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []interface{}
	if promptID != "" {
		where = " WHERE prompt_id = ?"
		args = append(args, promptID)
	}
	if statusFilter != "" {
		if where == "" {
			where = " WHERE execution_status = ?"
		} else {
			where += " AND execution_status = ?"
		}
		args = append(args, statusFilter)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM execution_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count execution records")
	}

	// rowid breaks created_at ties so pagination stays in insertion order
	query := `
		SELECT id, prompt_id, trigger_kind, input_data, rendered_prompt,
			completion_response, webhook_response_status, webhook_response_body,
			execution_status, error_message, created_at
		FROM execution_records` + where + `
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list execution records")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan execution record row")
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var trigger, status string
	var inputData, webhookBody, errorMessage sql.NullString
	var webhookStatus sql.NullInt64
	var response string

	err := row.Scan(
		&rec.ID, &rec.PromptID, &trigger, &inputData, &rec.RenderedPrompt,
		&response, &webhookStatus, &webhookBody,
		&status, &errorMessage, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Trigger = Trigger(trigger)
	rec.Status = Status(status)
	rec.Response = json.RawMessage(response)

	if inputData.Valid {
		rec.InputData = json.RawMessage(inputData.String)
	}
	if webhookStatus.Valid {
		code := int(webhookStatus.Int64)
		rec.WebhookStatus = &code
	}
	if webhookBody.Valid {
		rec.WebhookBody = &webhookBody.String
	}
	if errorMessage.Valid {
		rec.ErrorMessage = &errorMessage.String
	}

	return &rec, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}
