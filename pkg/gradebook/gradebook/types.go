// pkg/gradebook/gradebook/types.go
package gradebook

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Store lookups that match nothing.
var ErrNotFound = errors.New("gradebook: not found")

// Activity is the local lesson a line item stands for.
type Activity struct {
	LessonID int64
	Title    string
	MaxScore float64
}

// ResourceID is the AGS resourceId used for the activity's line item.
func (a Activity) ResourceID() string { return resourceID(a.LessonID) }

// Result is one learner's final grade for an activity.
type Result struct {
	Activity
	UserID     int64
	ScoreGiven float64
	Timestamp  time.Time
}

type GradebookLineItem struct {
	ID          int64
	SiteID      string
	LessonID    int64
	Label       string
	ScoreMax    float64
	LineItemURL string // absolute URL
}

// Store: implement this in your app, or use pkg/gradebook/sqlstore.Store
type Store interface {
	UpsertLineItem(ctx context.Context, li GradebookLineItem) (GradebookLineItem, error)
	FindLineItem(ctx context.Context, siteID string, lessonID int64) (GradebookLineItem, error)
	GetPlatformUserID(ctx context.Context, localUserID int64) (string, error)

	MarkSyncPending(ctx context.Context, key string) error
	MarkSyncOK(ctx context.Context, key string) error
	MarkSyncFailed(ctx context.Context, key, lastErr string) error
}

type LineItem struct {
	ID, Label, ResourceID, ResourceLinkID string
	ScoreMaximum                          float64
}

type CreateLineItemReq struct {
	Label          string
	ScoreMaximum   float64
	ResourceID     string
	ResourceLinkID string
}

type Score struct {
	UserID, ActivityProgress, GradingProgress string
	ScoreGiven, ScoreMaximum                  float64
	Timestamp                                 time.Time
}

type AGSClient interface {
	ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]LineItem, error)
	CreateLineItem(ctx context.Context, lineItemsURL string, req CreateLineItemReq) (LineItem, error)
	PostScore(ctx context.Context, lineItemURL string, s Score) error
}
