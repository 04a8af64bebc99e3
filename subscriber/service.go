package subscriber

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/security"
)

// Registration errors.
var (
	// ErrAdminLocked is returned when an owner edit hits a locked subscriber.
	ErrAdminLocked = errors.New("subscriber: locked by administrator")

	// ErrAdminDeactivated is returned when an owner tries to re-activate a
	// subscriber an administrator force-disabled.
	ErrAdminDeactivated = errors.New("subscriber: deactivated by administrator")
)

// Defaults applied on create when the input leaves them unset.
const (
	DefaultRetryCount    = 3
	DefaultRetryInterval = 60 // seconds
)

// Service provides subscriber registration and administration.
// Owner operations respect AdminLocked and DeactivatedBy; Admin* methods
// bypass both.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new subscriber service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create registers a new webhook subscriber. New subscribers start active
// but unapproved; deliveries begin once an administrator approves.
func (svc *Service) Create(ctx context.Context, in Input) (*Subscriber, error) {
	if in.FormID == "" {
		return nil, &ValidationError{Field: "form_id", Message: "required"}
	}
	if _, err := url.ParseRequestURI(in.URL); err != nil {
		return nil, &ValidationError{Field: "url", Message: "invalid URL"}
	}
	if len(in.EventTypes) == 0 {
		return nil, &ValidationError{Field: "event_types", Message: "at least one event type required"}
	}
	for _, et := range in.EventTypes {
		if !et.Valid() {
			return nil, &ValidationError{Field: "event_types", Message: "unknown event type " + string(et)}
		}
	}

	mode := in.AuthMode
	if mode == "" {
		mode = security.AuthNone
	}
	if !mode.Valid() {
		return nil, &ValidationError{Field: "auth_mode", Message: "unknown auth mode " + string(mode)}
	}

	secret := in.SigningSecret
	if secret == "" {
		secret = security.GenerateSecret()
	}

	retryCount := in.RetryCount
	if retryCount <= 0 {
		retryCount = DefaultRetryCount
	}
	retryInterval := in.RetryInterval
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}

	now := time.Now()
	s := &Subscriber{
		Entity:            entity.New(),
		ID:                id.NewSubscriberID(),
		FormID:            in.FormID,
		URL:               in.URL,
		Description:       in.Description,
		Active:            true,
		Approval:          ApprovalPending,
		EventTypes:        in.EventTypes,
		AuthMode:          mode,
		AuthCredential:    in.AuthCredential,
		SigningSecret:     secret,
		VerificationToken: in.VerificationToken,
		AllowedIPs:        security.AllowList(in.AllowedIPs),
		IncludeFields:     in.IncludeFields,
		ExcludeFields:     in.ExcludeFields,
		RetryCount:        retryCount,
		RetryInterval:     retryInterval,
		RateLimit:         in.RateLimit,
		DailyLimit:        in.DailyLimit,
		DailyResetAt:      NextResetBoundary(now),
		Headers:           in.Headers,
		FilterCondition:   in.FilterCondition,
		Metadata:          in.Metadata,
	}

	if err := svc.store.CreateSubscriber(ctx, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Get returns a subscriber by ID.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscriber, error) {
	return svc.store.GetSubscriber(ctx, subID)
}

// Update modifies an existing subscriber on behalf of its owner.
func (svc *Service) Update(ctx context.Context, subID id.ID, in Input) (*Subscriber, error) {
	s, err := svc.store.GetSubscriber(ctx, subID)
	if err != nil {
		return nil, err
	}
	if s.AdminLocked {
		return nil, ErrAdminLocked
	}

	if in.URL != "" {
		if _, err := url.ParseRequestURI(in.URL); err != nil {
			return nil, &ValidationError{Field: "url", Message: "invalid URL"}
		}
		s.URL = in.URL
	}
	if in.Description != "" {
		s.Description = in.Description
	}
	if len(in.EventTypes) > 0 {
		for _, et := range in.EventTypes {
			if !et.Valid() {
				return nil, &ValidationError{Field: "event_types", Message: "unknown event type " + string(et)}
			}
		}
		s.EventTypes = in.EventTypes
	}
	if in.AuthMode != "" {
		if !in.AuthMode.Valid() {
			return nil, &ValidationError{Field: "auth_mode", Message: "unknown auth mode " + string(in.AuthMode)}
		}
		s.AuthMode = in.AuthMode
	}
	if in.AuthCredential != "" {
		s.AuthCredential = in.AuthCredential
	}
	if in.VerificationToken != "" {
		s.VerificationToken = in.VerificationToken
	}
	if in.AllowedIPs != nil {
		s.AllowedIPs = security.AllowList(in.AllowedIPs)
	}
	if in.IncludeFields != nil {
		s.IncludeFields = in.IncludeFields
	}
	if in.ExcludeFields != nil {
		s.ExcludeFields = in.ExcludeFields
	}
	if in.RetryCount > 0 {
		s.RetryCount = in.RetryCount
	}
	if in.RetryInterval > 0 {
		s.RetryInterval = in.RetryInterval
	}
	if in.RateLimit >= 0 {
		s.RateLimit = in.RateLimit
	}
	if in.DailyLimit >= 0 {
		s.DailyLimit = in.DailyLimit
	}
	if in.Headers != nil {
		s.Headers = in.Headers
	}
	if in.FilterCondition != nil {
		s.FilterCondition = in.FilterCondition
	}
	if in.Metadata != nil {
		s.Metadata = in.Metadata
	}

	if err := svc.store.UpdateSubscriber(ctx, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Delete removes a subscriber.
func (svc *Service) Delete(ctx context.Context, subID id.ID) error {
	s, err := svc.store.GetSubscriber(ctx, subID)
	if err != nil {
		return err
	}
	if s.AdminLocked {
		return ErrAdminLocked
	}
	return svc.store.DeleteSubscriber(ctx, subID)
}

// List returns subscribers for a form.
func (svc *Service) List(ctx context.Context, formID string, opts ListOpts) ([]*Subscriber, error) {
	return svc.store.ListSubscribers(ctx, formID, opts)
}

// SetActive toggles the owner-controlled active flag. Re-activation is
// refused while an administrator deactivation is in force.
func (svc *Service) SetActive(ctx context.Context, subID id.ID, active bool) error {
	s, err := svc.store.GetSubscriber(ctx, subID)
	if err != nil {
		return err
	}
	if s.AdminLocked {
		return ErrAdminLocked
	}
	if active && s.DeactivatedBy != nil {
		return ErrAdminDeactivated
	}
	s.Active = active
	return svc.store.UpdateSubscriber(ctx, s)
}

// RotateSecret generates a new signing secret for a subscriber.
func (svc *Service) RotateSecret(ctx context.Context, subID id.ID) (string, error) {
	s, err := svc.store.GetSubscriber(ctx, subID)
	if err != nil {
		return "", err
	}
	if s.AdminLocked {
		return "", ErrAdminLocked
	}

	newSecret := security.GenerateSecret()
	s.SigningSecret = newSecret
	if err := svc.store.UpdateSubscriber(ctx, s); err != nil {
		return "", err
	}

	return newSecret, nil
}

// Approve marks a subscriber as administrator-approved, enabling delivery.
func (svc *Service) Approve(ctx context.Context, subID id.ID) error {
	return svc.setApproval(ctx, subID, ApprovalApproved)
}

// Reject marks a subscriber as rejected, blocking delivery.
func (svc *Service) Reject(ctx context.Context, subID id.ID) error {
	return svc.setApproval(ctx, subID, ApprovalRejected)
}

func (svc *Service) setApproval(ctx context.Context, subID id.ID, a Approval) error {
	s, err := svc.store.GetSubscriber(ctx, subID)
	if err != nil {
		return err
	}
	s.Approval = a
	return svc.store.UpdateSubscriber(ctx, s)
}

// AdminDeactivate force-disables a subscriber and records the acting
// administrator. The owner cannot undo this.
func (svc *Service) AdminDeactivate(ctx context.Context, subID id.ID, adminID string) error {
	s, err := svc.store.GetSubscriber(ctx, subID)
	if err != nil {
		return err
	}
	s.DeactivatedBy = &adminID
	s.Active = false
	return svc.store.UpdateSubscriber(ctx, s)
}

// AdminReactivate clears an administrator deactivation.
func (svc *Service) AdminReactivate(ctx context.Context, subID id.ID) error {
	s, err := svc.store.GetSubscriber(ctx, subID)
	if err != nil {
		return err
	}
	s.DeactivatedBy = nil
	return svc.store.UpdateSubscriber(ctx, s)
}

// SetLocked freezes or unfreezes owner edits.
func (svc *Service) SetLocked(ctx context.Context, subID id.ID, locked bool) error {
	s, err := svc.store.GetSubscriber(ctx, subID)
	if err != nil {
		return err
	}
	s.AdminLocked = locked
	return svc.store.UpdateSubscriber(ctx, s)
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "subscriber validation: " + e.Field + ": " + e.Message
}
