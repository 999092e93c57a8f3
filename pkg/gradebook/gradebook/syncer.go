// pkg/gradebook/gradebook/syncer.go
package gradebook

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

type Clock func() time.Time

// Syncer pushes lesson grades to one AGS line-items container. Line items
// are created on first use and cached per (site, lesson) in the Store.
type Syncer struct {
	Store        Store
	AGS          AGSClient
	LineItemsURL string
	SiteID       string
	Now          Clock
}

func New(store Store, ags AGSClient, lineItemsURL, siteID string, now Clock) *Syncer {
	if now == nil {
		now = time.Now
	}
	if siteID == "" {
		siteID = "local"
	}
	return &Syncer{Store: store, AGS: ags, LineItemsURL: lineItemsURL, SiteID: siteID, Now: now}
}

func resourceID(lessonID int64) string { return "lesson-" + strconv.FormatInt(lessonID, 10) }

// SyncKey identifies the sync status row of one learner's grade.
func SyncKey(lessonID, userID int64) string {
	return strconv.FormatInt(lessonID, 10) + ":" + strconv.FormatInt(userID, 10)
}

func (s *Syncer) EnsureLineItem(ctx context.Context, act Activity) (GradebookLineItem, error) {
	if li, err := s.Store.FindLineItem(ctx, s.SiteID, act.LessonID); err == nil && li.LineItemURL != "" {
		return li, nil
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return GradebookLineItem{}, errors.Wrap(err, "find line item")
	}
	if s.LineItemsURL == "" {
		return GradebookLineItem{}, errors.New("missing lineitems_url")
	}

	rid := act.ResourceID()
	items, err := s.AGS.ListLineItems(ctx, s.LineItemsURL, map[string]string{"resource_id": rid})
	if err == nil {
		for _, it := range items {
			if it.ResourceID == rid {
				return s.Store.UpsertLineItem(ctx, GradebookLineItem{
					SiteID: s.SiteID, LessonID: act.LessonID,
					Label: it.Label, ScoreMax: it.ScoreMaximum, LineItemURL: it.ID,
				})
			}
		}
	}
	created, err := s.AGS.CreateLineItem(ctx, s.LineItemsURL, CreateLineItemReq{
		Label: act.Title, ScoreMaximum: act.MaxScore, ResourceID: rid,
	})
	if err != nil {
		return GradebookLineItem{}, errors.Wrap(err, "create line item")
	}
	return s.Store.UpsertLineItem(ctx, GradebookLineItem{
		SiteID: s.SiteID, LessonID: act.LessonID,
		Label: created.Label, ScoreMax: created.ScoreMaximum, LineItemURL: created.ID,
	})
}

// SyncResult posts one learner's score, tracking status under SyncKey.
// Learners without a platform mapping are sent under their local id.
func (s *Syncer) SyncResult(ctx context.Context, res Result) error {
	key := SyncKey(res.LessonID, res.UserID)
	_ = s.Store.MarkSyncPending(ctx, key)

	li, err := s.EnsureLineItem(ctx, res.Activity)
	if err != nil {
		_ = s.Store.MarkSyncFailed(ctx, key, err.Error())
		return err
	}

	platformUserID, err := s.Store.GetPlatformUserID(ctx, res.UserID)
	switch {
	case errors.Is(err, ErrNotFound) || (err == nil && platformUserID == ""):
		platformUserID = strconv.FormatInt(res.UserID, 10)
	case err != nil:
		_ = s.Store.MarkSyncFailed(ctx, key, err.Error())
		return errors.Wrapf(err, "platform user for %d", res.UserID)
	}

	ts := res.Timestamp
	if ts.IsZero() {
		ts = s.Now()
	}
	if err := s.AGS.PostScore(ctx, li.LineItemURL, Score{
		UserID: platformUserID, ScoreGiven: res.ScoreGiven, ScoreMaximum: res.MaxScore,
		ActivityProgress: "Completed", GradingProgress: "FullyGraded",
		Timestamp: ts,
	}); err != nil {
		_ = s.Store.MarkSyncFailed(ctx, key, err.Error())
		return err
	}
	return s.Store.MarkSyncOK(ctx, key)
}
