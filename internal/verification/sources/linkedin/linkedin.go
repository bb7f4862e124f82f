// Package linkedin corroborates a company through its professional-network
// presence. It is a secondary source: weak on its own.
package linkedin

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trustos/internal/verification/models"
	"trustos/internal/verification/sources"
	pstrings "trustos/pkg/platform/strings"
)

const Name = "linkedin"

// Match score components, out of 100.
const (
	nameMatchPoints = 50
	staffPoints     = 25
	followerPoints  = 25
	minStaff        = 10
	minFollowers    = 1000
)

type organization struct {
	Name          string `json:"name"`
	VanityName    string `json:"vanityName"`
	StaffCount    int    `json:"staffCount"`
	FollowerCount int    `json:"followerCount"`
	FoundedOn     struct {
		Year int `json:"year"`
	} `json:"foundedOn"`
	Industry string `json:"industry"`
}

type searchResponse struct {
	Elements []organization `json:"elements"`
}

type Adapter struct {
	client *sources.HTTPClient
	now    func() time.Time
}

func New(client *sources.HTTPClient) *Adapter {
	return &Adapter{client: client, now: time.Now}
}

// BearerAuth sets the OAuth access token.
func BearerAuth(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func (a *Adapter) Name() string {
	return Name
}

func (a *Adapter) Query(ctx context.Context, subject models.Subject) (*models.SourceResult, error) {
	q := url.Values{}
	q.Set("q", "search")
	q.Set("keywords", subject.Name)

	var resp searchResponse
	err := a.client.GetJSON(ctx, "/organizations", q, &resp)
	if sources.GetCategory(err) == sources.ErrorNotFound {
		return &models.SourceResult{Source: Name, CheckedAt: a.now().UTC()}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Elements) == 0 {
		return &models.SourceResult{Source: Name, CheckedAt: a.now().UTC()}, nil
	}

	org := resp.Elements[0]
	score := MatchScore(subject.Name, org.Name, org.StaffCount, org.FollowerCount)
	res := &models.SourceResult{
		Source:        Name,
		Matched:       score > 0,
		EmployeeCount: org.StaffCount,
		Details: map[string]string{
			"name":      org.Name,
			"vanity":    org.VanityName,
			"followers": strconv.Itoa(org.FollowerCount),
			"industry":  org.Industry,
		},
		RawConfidence: score,
		CheckedAt:     a.now().UTC(),
	}
	if org.FoundedOn.Year > 0 {
		res.FoundingDate = strconv.Itoa(org.FoundedOn.Year)
	}
	return res, nil
}

// MatchScore rates a profile: 50 for an exact normalized name, 25 for more
// than 10 staff, 25 for more than 1000 followers.
func MatchScore(wantName, gotName string, staff, followers int) float64 {
	score := 0.0
	if n := pstrings.NormalizeText(wantName); n != "" && n == pstrings.NormalizeText(gotName) {
		score += nameMatchPoints
	}
	if staff > minStaff {
		score += staffPoints
	}
	if followers > minFollowers {
		score += followerPoints
	}
	return score
}
