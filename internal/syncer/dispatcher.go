// Package syncer drains the durable action queue against the remote
// authority, enforcing single-flight execution and bounded retry.
package syncer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
	"github.com/simonmuehling/educafric-app-sub010/internal/models"
)

// Dispatcher delivers a single action to the remote authority. A nil error
// means the authority accepted the action.
type Dispatcher interface {
	Dispatch(ctx context.Context, action *models.Action) error
}

// categoryPaths is the fixed category-to-endpoint mapping. Assignments ride
// the homework endpoint on the remote side.
var categoryPaths = map[models.Category]string{
	models.CategoryAttendance: "/api/attendance",
	models.CategoryGrade:      "/api/grades",
	models.CategoryHomework:   "/api/homework",
	models.CategoryMessage:    "/api/messages",
	models.CategoryAssignment: "/api/homework",
}

// fallbackPath receives actions of unmapped categories, always via POST.
const fallbackPath = "/api/sync"

// Resolve maps an action onto an HTTP method and path. Updates and deletes
// address the remote record through the payload's id field.
func Resolve(action *models.Action) (method, path string, err error) {
	base, ok := categoryPaths[action.Category]
	if !ok {
		return http.MethodPost, fallbackPath, nil
	}

	switch action.Operation {
	case models.OperationCreate:
		return http.MethodPost, base, nil
	case models.OperationUpdate, models.OperationDelete:
		id := action.PayloadID()
		if id == "" {
			return "", "", errors.New(errors.ErrValidation,
				fmt.Sprintf("%s action %s has no payload id", action.Operation, action.ID))
		}
		method = http.MethodPut
		if action.Operation == models.OperationDelete {
			method = http.MethodDelete
		}
		return method, base + "/" + id, nil
	default:
		return "", "", errors.New(errors.ErrValidation,
			fmt.Sprintf("unknown operation %q", action.Operation))
	}
}

// HTTPDispatcher delivers actions over HTTP. Timeout policy lives in the
// injected client.
type HTTPDispatcher struct {
	baseURL   string
	client    *http.Client
	authToken string
}

// NewHTTPDispatcher creates a dispatcher for the remote authority at
// baseURL. Passing a nil client gets a default with a 30 second timeout.
func NewHTTPDispatcher(baseURL string, client *http.Client) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDispatcher{baseURL: baseURL, client: client}
}

// SetAuthToken sets the bearer token attached to dispatched requests.
func (d *HTTPDispatcher) SetAuthToken(token string) {
	d.authToken = token
}

// Dispatch sends one action. Failures are classified so callers can tell
// transport problems, remote rejections and credential problems apart,
// though all three consume a retry under the current policy.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, action *models.Action) error {
	method, path, err := Resolve(action)
	if err != nil {
		return err
	}

	var body io.Reader
	if method != http.MethodDelete {
		body = bytes.NewReader(action.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return errors.Wrap(errors.ErrTransportFailure, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-Id", fmt.Sprintf("%d", action.OwnerID))
	if d.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.authToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrTransportFailure, "dispatch failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.New(errors.ErrAuthFailed,
			fmt.Sprintf("remote authority rejected credentials (status %d)", resp.StatusCode))
	default:
		return errors.New(errors.ErrRemoteRejection,
			fmt.Sprintf("remote authority declined action (status %d)", resp.StatusCode))
	}
}

// DispatchFunc adapts a function to the Dispatcher interface, mainly for
// tests.
type DispatchFunc func(ctx context.Context, action *models.Action) error

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(ctx context.Context, action *models.Action) error {
	return f(ctx, action)
}
