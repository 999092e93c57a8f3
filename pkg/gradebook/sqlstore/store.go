package sqlstore

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/gradebook"
)

type Store struct{ DB *sql.DB }

func (s *Store) UpsertLineItem(ctx context.Context, li gradebook.GradebookLineItem) (gradebook.GradebookLineItem, error) {
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO gradebook_lineitems (site_id, lesson_id, label, score_max, line_item_url)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (site_id, lesson_id)
		DO UPDATE SET
			label=EXCLUDED.label,
			score_max=EXCLUDED.score_max,
			line_item_url=EXCLUDED.line_item_url,
			updated_at=CURRENT_TIMESTAMP
		RETURNING id`,
		li.SiteID, li.LessonID, li.Label, li.ScoreMax, li.LineItemURL).
		Scan(&li.ID)
	return li, errors.Wrap(err, "upsert line item")
}

func (s *Store) FindLineItem(ctx context.Context, siteID string, lessonID int64) (gradebook.GradebookLineItem, error) {
	var li gradebook.GradebookLineItem
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, site_id, lesson_id, label, score_max, line_item_url
		FROM gradebook_lineitems
		WHERE site_id=$1 AND lesson_id=$2`,
		siteID, lessonID).
		Scan(&li.ID, &li.SiteID, &li.LessonID, &li.Label, &li.ScoreMax, &li.LineItemURL)
	if errors.Is(err, sql.ErrNoRows) {
		return li, gradebook.ErrNotFound
	}
	return li, errors.Wrap(err, "find line item")
}

// MapUser links a local user to the platform's subject.
func (s *Store) MapUser(ctx context.Context, localUserID int64, platformSub string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO lti_user_map (local_user_id, platform_sub) VALUES ($1,$2)
		ON CONFLICT (local_user_id) DO UPDATE SET platform_sub=EXCLUDED.platform_sub`,
		localUserID, platformSub)
	return errors.Wrap(err, "map user")
}

func (s *Store) GetPlatformUserID(ctx context.Context, localUserID int64) (string, error) {
	var sub string
	err := s.DB.QueryRowContext(ctx, `SELECT platform_sub FROM lti_user_map WHERE local_user_id=$1`, localUserID).Scan(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return "", gradebook.ErrNotFound
	}
	return sub, errors.Wrap(err, "platform user")
}

func (s *Store) MarkSyncPending(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO grade_sync_status (sync_key, status, retries, updated_at)
		VALUES ($1,'pending',0,CURRENT_TIMESTAMP)
		ON CONFLICT (sync_key)
		DO UPDATE SET status='pending', updated_at=CURRENT_TIMESTAMP`,
		key)
	return errors.Wrap(err, "mark sync pending")
}

func (s *Store) MarkSyncOK(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE grade_sync_status
		   SET status='ok', last_error=NULL, updated_at=CURRENT_TIMESTAMP
		 WHERE sync_key=$1`, key)
	return errors.Wrap(err, "mark sync ok")
}

func (s *Store) MarkSyncFailed(ctx context.Context, key string, lastErr string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO grade_sync_status (sync_key, status, retries, last_error, updated_at)
		VALUES ($1,'failed',1,$2,CURRENT_TIMESTAMP)
		ON CONFLICT (sync_key)
		DO UPDATE SET
			status='failed',
			retries=grade_sync_status.retries+1,
			last_error=$2,
			updated_at=CURRENT_TIMESTAMP`,
		key, lastErr)
	return errors.Wrap(err, "mark sync failed")
}

// SyncStatus is the passback state of one key.
type SyncStatus struct {
	Status    string
	Retries   int
	LastError string
}

func (s *Store) GetSyncStatus(ctx context.Context, key string) (SyncStatus, error) {
	var st SyncStatus
	var lastErr sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT status, retries, last_error FROM grade_sync_status WHERE sync_key=$1`, key).
		Scan(&st.Status, &st.Retries, &lastErr)
	if errors.Is(err, sql.ErrNoRows) {
		return st, gradebook.ErrNotFound
	}
	st.LastError = lastErr.String
	return st, errors.Wrap(err, "sync status")
}
