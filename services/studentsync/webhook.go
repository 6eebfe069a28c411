package studentsyncsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/kymoh/elimu/core"
	"github.com/kymoh/elimu/core/user"
)

// Service pushes student records to the upstream enrolment system over its
// webhook endpoint.
type Service struct {
	url    string
	token  string
	client *http.Client
}

func NewService(conf *core.Config) *Service {
	return &Service{
		url:    conf.Batch.SyncURL,
		token:  conf.Batch.SyncToken,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an endpoint is configured.
func (svc *Service) Enabled() bool { return svc.url != "" }

type studentPayload struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	LastLogin time.Time `json:"last_login"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncStudent posts one student record. Endpoint failures are transport
// errors so the retry runner can tell them from bad data.
func (svc *Service) SyncStudent(ctx context.Context, usr user.User) error {
	body, err := json.Marshal(studentPayload{
		ID:        usr.ID,
		Name:      usr.Name,
		Username:  usr.Username,
		Email:     usr.Email,
		IsActive:  usr.IsActive,
		LastLogin: usr.LastLogin,
		UpdatedAt: usr.UpdatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "encoding student")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building sync request")
	}
	req.Header.Set("Content-Type", "application/json")
	if svc.token != "" {
		req.Header.Set("Authorization", "Bearer "+svc.token)
	}

	res, err := svc.client.Do(req)
	if err != nil {
		return core.NewTransportError(err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		snippet, _ := ioutil.ReadAll(io.LimitReader(res.Body, 512))
		return core.NewTransportError(errors.Errorf("status: %d - body: %s", res.StatusCode, snippet))
	}
	return nil
}
