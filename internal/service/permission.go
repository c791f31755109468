package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AdminStore is the admin persistence the permission service needs.
type AdminStore interface {
	IsGlobalAdmin(ctx context.Context, userID int64) (bool, error)
	IsServerAdmin(ctx context.Context, guildID, userID int64) (bool, error)
	AddGlobalAdmin(ctx context.Context, userID, addedBy int64) error
	AddServerAdmin(ctx context.Context, guildID, userID, addedBy int64) error
	RemoveServerAdmin(ctx context.Context, guildID, userID int64) error
}

// ChannelStore is the allowed-channel persistence.
type ChannelStore interface {
	AddAllowedChannel(ctx context.Context, guildID, channelID, addedBy int64) error
	IsAllowedChannel(ctx context.Context, channelID int64) (bool, error)
	ListAllowedChannels(ctx context.Context, guildID int64) ([]int64, error)
}

// PermissionService answers who may run which commands where. Configured
// admin IDs are always global admins; the store adds more.
type PermissionService struct {
	store      AdminStore
	channels   ChannelStore
	configured map[int64]bool
	logger     zerolog.Logger
}

// NewPermissionService creates a new PermissionService instance.
func NewPermissionService(store AdminStore, channels ChannelStore, configuredAdmins []int64) *PermissionService {
	configured := make(map[int64]bool, len(configuredAdmins))
	for _, id := range configuredAdmins {
		configured[id] = true
	}
	return &PermissionService{
		store:      store,
		channels:   channels,
		configured: configured,
		logger:     log.With().Str("component", "permissions").Logger(),
	}
}

// Bootstrap records configured admins in the store so they show up in it.
func (s *PermissionService) Bootstrap(ctx context.Context) error {
	for id := range s.configured {
		if err := s.store.AddGlobalAdmin(ctx, id, 0); err != nil {
			return fmt.Errorf("failed to seed admin %d: %w", id, err)
		}
	}
	return nil
}

// IsGlobalAdmin reports whether userID may administer every server.
func (s *PermissionService) IsGlobalAdmin(ctx context.Context, userID int64) (bool, error) {
	if s.configured[userID] {
		return true, nil
	}
	ok, err := s.store.IsGlobalAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check global admin: %w", err)
	}
	return ok, nil
}

// IsServerAdmin reports whether userID may administer guildID. Global
// admins administer every server.
func (s *PermissionService) IsServerAdmin(ctx context.Context, guildID, userID int64) (bool, error) {
	ok, err := s.IsGlobalAdmin(ctx, userID)
	if err != nil || ok {
		return ok, err
	}
	ok, err = s.store.IsServerAdmin(ctx, guildID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check server admin: %w", err)
	}
	return ok, nil
}

// AddServerAdmin grants userID admin rights on guildID.
func (s *PermissionService) AddServerAdmin(ctx context.Context, guildID, userID, addedBy int64) error {
	if err := s.store.AddServerAdmin(ctx, guildID, userID, addedBy); err != nil {
		return fmt.Errorf("failed to add server admin: %w", err)
	}
	s.logger.Info().
		Int64("guild_id", guildID).
		Int64("user_id", userID).
		Int64("added_by", addedBy).
		Msg("Server admin added")
	return nil
}

// RemoveServerAdmin revokes userID's admin rights on guildID. Global and
// configured admins keep their rights.
func (s *PermissionService) RemoveServerAdmin(ctx context.Context, guildID, userID, removedBy int64) error {
	if err := s.store.RemoveServerAdmin(ctx, guildID, userID); err != nil {
		return fmt.Errorf("failed to remove server admin: %w", err)
	}
	s.logger.Info().
		Int64("guild_id", guildID).
		Int64("user_id", userID).
		Int64("removed_by", removedBy).
		Msg("Server admin removed")
	return nil
}

// IsChannelAllowed reports whether userID may run user commands in
// channelID. Only channels added by a server admin are open; global admins
// may use commands anywhere.
func (s *PermissionService) IsChannelAllowed(ctx context.Context, channelID, userID int64) (bool, error) {
	ok, err := s.IsGlobalAdmin(ctx, userID)
	if err != nil || ok {
		return ok, err
	}
	ok, err = s.channels.IsAllowedChannel(ctx, channelID)
	if err != nil {
		return false, fmt.Errorf("failed to check channel: %w", err)
	}
	return ok, nil
}

// AllowChannel opens channelID of guildID for user commands.
func (s *PermissionService) AllowChannel(ctx context.Context, guildID, channelID, addedBy int64) error {
	if err := s.channels.AddAllowedChannel(ctx, guildID, channelID, addedBy); err != nil {
		return fmt.Errorf("failed to allow channel: %w", err)
	}
	s.logger.Info().
		Int64("guild_id", guildID).
		Int64("channel_id", channelID).
		Int64("added_by", addedBy).
		Msg("Channel allowed")
	return nil
}

// AllowedChannels lists the open channels of guildID.
func (s *PermissionService) AllowedChannels(ctx context.Context, guildID int64) ([]int64, error) {
	ids, err := s.channels.ListAllowedChannels(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowed channels: %w", err)
	}
	return ids, nil
}
