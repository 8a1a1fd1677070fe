package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"dealership_backend/internal/cache"
	"dealership_backend/internal/model"
	"dealership_backend/internal/repository"
)

const (
	defaultInboxLimit = 20
	maxInboxLimit     = 50
)

// NotificationService handles the read side of both inboxes and device registration.
// Writing notifications is the Dispatcher's job.
type NotificationService struct {
	userInbox     repository.UserInboxRepository
	operatorInbox repository.InboxRepository
	devices       repository.DeviceTargetRepository
	unread        cache.UnreadCache
	logger        *zap.Logger
}

func NewNotificationService(
	userInbox repository.UserInboxRepository,
	operatorInbox repository.InboxRepository,
	devices repository.DeviceTargetRepository,
	unread cache.UnreadCache,
	logger *zap.Logger,
) *NotificationService {
	if unread == nil {
		unread = cache.NopUnreadCache{}
	}
	return &NotificationService{
		userInbox:     userInbox,
		operatorInbox: operatorInbox,
		devices:       devices,
		unread:        unread,
		logger:        logger.Named("notification_service"),
	}
}

func (s *NotificationService) inbox(audience model.Audience) repository.InboxRepository {
	if audience == model.AudienceOperator {
		return s.operatorInbox
	}
	return s.userInbox
}

// List returns the newest records visible to the recipient plus the unread badge count.
func (s *NotificationService) List(ctx context.Context, audience model.Audience, recipientID int64, limit int, unreadOnly bool) (*model.InboxListResponse, error) {
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	if limit > maxInboxLimit {
		limit = maxInboxLimit
	}

	items, err := s.inbox(audience).List(ctx, recipientID, limit, unreadOnly)
	if err != nil {
		return nil, err
	}

	unread, err := s.UnreadCount(ctx, audience, recipientID)
	if err != nil {
		return nil, err
	}

	return &model.InboxListResponse{Items: items, UnreadCount: unread}, nil
}

// UnreadCount returns the badge count, served from cache when possible.
func (s *NotificationService) UnreadCount(ctx context.Context, audience model.Audience, recipientID int64) (int, error) {
	if n, found, err := s.unread.Get(ctx, audience, recipientID); err != nil {
		s.logger.Warn("unread cache read failed", zap.Error(err))
	} else if found {
		return n, nil
	}

	n, err := s.inbox(audience).UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	if err := s.unread.Set(ctx, audience, recipientID, n); err != nil {
		s.logger.Warn("unread cache write failed", zap.Error(err))
	}
	return n, nil
}

// MarkAsRead marks specific records as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, audience model.Audience, recipientID int64, ids []int64) (int64, error) {
	n, err := s.inbox(audience).MarkAsRead(ctx, recipientID, ids)
	if err != nil {
		return 0, err
	}
	s.afterReadChange(ctx, audience, recipientID)
	return n, nil
}

// MarkAllAsRead marks every unread record visible to the recipient as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, audience model.Audience, recipientID int64) (int64, error) {
	n, err := s.inbox(audience).MarkAllAsRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	s.afterReadChange(ctx, audience, recipientID)
	return n, nil
}

// afterReadChange drops stale badge counts. The read flag of an operator-wide
// alert is shared, so marking one changes every operator's count.
func (s *NotificationService) afterReadChange(ctx context.Context, audience model.Audience, recipientID int64) {
	var err error
	if audience == model.AudienceOperator {
		err = s.unread.InvalidateAudience(ctx, audience)
	} else {
		err = s.unread.Invalidate(ctx, audience, recipientID)
	}
	if err != nil {
		s.logger.Warn("unread cache invalidation failed", zap.Error(err))
	}
}

// Delete removes one of the end-user's own records. Operator alerts are never deleted.
func (s *NotificationService) Delete(ctx context.Context, recipientID, id int64) error {
	if err := s.userInbox.Delete(ctx, recipientID, id); err != nil {
		return err
	}
	if err := s.unread.Invalidate(ctx, model.AudienceUser, recipientID); err != nil {
		s.logger.Warn("unread cache invalidation failed", zap.Error(err))
	}
	return nil
}

// RegisterDevice stores a push token. With a principal the token becomes that
// principal's only target (last write wins); without one it is an anonymous target.
func (s *NotificationService) RegisterDevice(ctx context.Context, userID *int64, token, platform string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidDevice)
	}
	switch platform {
	case "":
		platform = model.PlatformExpo
	case model.PlatformIOS, model.PlatformAndroid, model.PlatformExpo:
	default:
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidDevice, platform)
	}

	if userID == nil {
		return s.devices.RegisterAnonymous(ctx, token, platform)
	}
	return s.devices.RegisterOwned(ctx, *userID, token, platform)
}

// RemoveDevice removes a token the caller holds. A nil owner is a guest and
// may only remove guest targets.
func (s *NotificationService) RemoveDevice(ctx context.Context, owner *int64, token string) (bool, error) {
	return s.devices.DeleteOwned(ctx, owner, token)
}

// SignOut clears every target the principal owns.
func (s *NotificationService) SignOut(ctx context.Context, userID int64) (int64, error) {
	n, err := s.devices.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("device targets cleared on sign-out", zap.Int64("user_id", userID), zap.Int64("removed", n))
	return n, nil
}
