package agshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/mindengage-lessons/pkg/gradebook/gradebook"
)

const (
	mediaLineItem  = "application/vnd.ims.lis.v2.lineitem+json"
	mediaLineItems = "application/vnd.ims.lis.v2.lineitemcontainer+json"
	mediaScore     = "application/vnd.ims.lis.v1.score+json"
)

// Default AGS scopes requested when Config.Scopes is empty.
var DefaultScopes = []string{
	"https://purl.imsglobal.org/spec/lti-ags/scope/lineitem",
	"https://purl.imsglobal.org/spec/lti-ags/scope/score",
}

type Client struct {
	http *http.Client
}

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

func New(cfg Config) *Client {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       scopes,
	}
	h := cc.Client(context.Background())
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{http: h}
}

// lineItem is the AGS wire form of a line item.
type lineItem struct {
	ID             string  `json:"id,omitempty"`
	Label          string  `json:"label"`
	ScoreMaximum   float64 `json:"scoreMaximum"`
	ResourceID     string  `json:"resourceId,omitempty"`
	ResourceLinkID string  `json:"resourceLinkId,omitempty"`
}

func (it lineItem) toModel() gradebook.LineItem {
	return gradebook.LineItem{
		ID: it.ID, Label: it.Label, ScoreMaximum: it.ScoreMaximum,
		ResourceID: it.ResourceID, ResourceLinkID: it.ResourceLinkID,
	}
}

func (c *Client) do(req *http.Request, op string, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, op)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, res.Body)
		return errors.Errorf("%s: %s", op, res.Status)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.NewDecoder(res.Body).Decode(out), "%s: decode", op)
}

func (c *Client) ListLineItems(ctx context.Context, lineItemsURL string, q map[string]string) ([]gradebook.LineItem, error) {
	u, err := url.Parse(lineItemsURL)
	if err != nil {
		return nil, errors.Wrap(err, "list line items")
	}
	p := u.Query()
	for k, v := range q {
		p.Set(k, v)
	}
	u.RawQuery = p.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "list line items")
	}
	req.Header.Set("Accept", mediaLineItems)

	var items []lineItem
	if err := c.do(req, "list line items", &items); err != nil {
		return nil, err
	}
	out := make([]gradebook.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.toModel())
	}
	return out, nil
}

func (c *Client) CreateLineItem(ctx context.Context, lineItemsURL string, req gradebook.CreateLineItemReq) (gradebook.LineItem, error) {
	body, err := json.Marshal(lineItem{
		Label: req.Label, ScoreMaximum: req.ScoreMaximum,
		ResourceID: req.ResourceID, ResourceLinkID: req.ResourceLinkID,
	})
	if err != nil {
		return gradebook.LineItem{}, errors.Wrap(err, "create line item")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, lineItemsURL, bytes.NewReader(body))
	if err != nil {
		return gradebook.LineItem{}, errors.Wrap(err, "create line item")
	}
	httpReq.Header.Set("Content-Type", mediaLineItem)
	httpReq.Header.Set("Accept", mediaLineItem)

	var it lineItem
	if err := c.do(httpReq, "create line item", &it); err != nil {
		return gradebook.LineItem{}, err
	}
	return it.toModel(), nil
}

// PostScore posts to {lineItemURL}/scores, keeping any query string on the
// line item URL.
func (c *Client) PostScore(ctx context.Context, lineItemURL string, s gradebook.Score) error {
	body, err := json.Marshal(map[string]any{
		"userId": s.UserID, "scoreGiven": s.ScoreGiven, "scoreMaximum": s.ScoreMaximum,
		"activityProgress": s.ActivityProgress, "gradingProgress": s.GradingProgress,
		"timestamp": s.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.Wrap(err, "post score")
	}
	u, err := url.Parse(lineItemURL)
	if err != nil {
		return errors.Wrap(err, "post score")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/scores"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "post score")
	}
	httpReq.Header.Set("Content-Type", mediaScore)
	return c.do(httpReq, "post score", nil)
}
