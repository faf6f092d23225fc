package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/grammar"
	"github.com/dwizi/region-relay/internal/relay"
	"github.com/dwizi/region-relay/internal/store"
)

type adminCommand func(s *Service, ctx context.Context, chatID int64, args []string) error

var adminCommands = map[string]adminCommand{
	"list_users": (*Service).listUsers,
	"add_user":   (*Service).addUser,
	"del_user":   (*Service).deleteUser,
	"list_chats": (*Service).listChats,
	"add_chat":   (*Service).addChat,
	"del_chat":   (*Service).deleteChat,
	"grant":      (*Service).grantRegions,
	"revoke":     (*Service).revokeRegions,
	"access":     (*Service).listAccess,
	"listdb":     (*Service).listArchive,
	"deldb":      (*Service).deleteArchived,
	"cleandb":    (*Service).cleanArchive,
	"statdb":     (*Service).archiveStats,
}

const badIDReply = "Unknown id"

func parseID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) error {
	return s.sender.SendMessage(ctx, chatID, text)
}

func (s *Service) listUsers(ctx context.Context, chatID int64, _ []string) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return s.reply(ctx, chatID, renderError(err))
	}
	if len(users) == 0 {
		return s.reply(ctx, chatID, "No users yet. Use /add_user id to add one.")
	}
	for _, user := range users {
		encoded, err := json.MarshalIndent(user, "", "  ")
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		if err := s.reply(ctx, chatID, string(encoded)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) addUser(ctx context.Context, chatID int64, args []string) error {
	id, ok := parseID(args)
	if !ok || len(args) > 2 {
		return s.reply(ctx, chatID, badIDReply)
	}
	group := store.GroupRegistered
	if len(args) == 2 {
		group = store.ParseUserGroup(args[1])
	}
	if err := s.store.UpsertUser(ctx, store.User{ID: id, Group: group}); err != nil {
		return s.reply(ctx, chatID, "Could not add user. Error: "+err.Error())
	}
	return s.reply(ctx, chatID, fmt.Sprintf("Added user with id %d", id))
}

func (s *Service) deleteUser(ctx context.Context, chatID int64, args []string) error {
	id, ok := parseID(args)
	if !ok || len(args) != 1 {
		return s.reply(ctx, chatID, badIDReply)
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return s.reply(ctx, chatID, "Could not delete user. Error: "+err.Error())
	}
	return s.reply(ctx, chatID, fmt.Sprintf("Deleted user with id %d", id))
}

func (s *Service) listChats(ctx context.Context, chatID int64, _ []string) error {
	chats, err := s.store.ListChats(ctx)
	if err != nil {
		return s.reply(ctx, chatID, renderError(err))
	}
	if len(chats) == 0 {
		return s.reply(ctx, chatID, "No chats added yet. Use /add_chat id to add a chat.")
	}
	for _, id := range chats {
		if err := s.reply(ctx, chatID, strconv.FormatInt(id, 10)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) addChat(ctx context.Context, chatID int64, args []string) error {
	id, ok := parseID(args)
	if !ok || len(args) != 1 {
		return s.reply(ctx, chatID, badIDReply)
	}
	if err := s.store.AddChat(ctx, id); err != nil {
		return s.reply(ctx, chatID, "Could not add chat. Error: "+err.Error())
	}
	s.rememberChat(id)
	return s.reply(ctx, chatID, fmt.Sprintf("Added chat with id %d", id))
}

func (s *Service) deleteChat(ctx context.Context, chatID int64, args []string) error {
	id, ok := parseID(args)
	if !ok || len(args) != 1 {
		return s.reply(ctx, chatID, badIDReply)
	}
	if err := s.store.DeleteChat(ctx, id); err != nil {
		return s.reply(ctx, chatID, "Could not delete chat. Error: "+err.Error())
	}
	s.forgetChat(id)
	return s.reply(ctx, chatID, fmt.Sprintf("Deleted chat with id %d", id))
}

// regionArgs resolves the region words of /grant and /revoke.
func (s *Service) regionArgs(args []string) ([]string, error) {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return nil, relay.ErrNoRegions
	}
	resolution := s.catalog.AliasIndex().Resolve(text)
	switch resolution.Kind {
	case catalog.Unresolved:
		return nil, &relay.BadRegionError{Token: resolution.Token, Candidates: resolution.Candidates}
	case catalog.AllCountry:
		return s.catalog.Codes(), nil
	}
	seen := map[string]struct{}{}
	regions := make([]string, 0, len(resolution.Regions))
	for _, region := range resolution.Regions {
		if _, dup := seen[region]; dup {
			continue
		}
		seen[region] = struct{}{}
		regions = append(regions, region)
	}
	return regions, nil
}

func (s *Service) grantRegions(ctx context.Context, chatID int64, args []string) error {
	id, ok := parseID(args)
	if !ok {
		return s.reply(ctx, chatID, badIDReply)
	}
	regions, err := s.regionArgs(args[1:])
	if err != nil {
		return s.reply(ctx, chatID, renderError(err))
	}
	if err := s.store.GrantRegions(ctx, id, regions); err != nil {
		return s.reply(ctx, chatID, "Could not grant regions. Error: "+err.Error())
	}
	return s.reply(ctx, chatID, fmt.Sprintf("Granted %d: [%s]", id, strings.Join(regions, ", ")))
}

func (s *Service) revokeRegions(ctx context.Context, chatID int64, args []string) error {
	id, ok := parseID(args)
	if !ok {
		return s.reply(ctx, chatID, badIDReply)
	}
	regions, err := s.regionArgs(args[1:])
	if err != nil {
		return s.reply(ctx, chatID, renderError(err))
	}
	removed, err := s.store.RevokeRegions(ctx, id, regions)
	if err != nil {
		return s.reply(ctx, chatID, "Could not revoke regions. Error: "+err.Error())
	}
	return s.reply(ctx, chatID, fmt.Sprintf("Revoked %d regions from %d", removed, id))
}

func (s *Service) listAccess(ctx context.Context, chatID int64, args []string) error {
	id, ok := parseID(args)
	if !ok || len(args) != 1 {
		return s.reply(ctx, chatID, badIDReply)
	}
	regions, err := s.store.ListAccess(ctx, id)
	if err != nil {
		return s.reply(ctx, chatID, renderError(err))
	}
	if len(regions) == 0 {
		return s.reply(ctx, chatID, fmt.Sprintf("User %d has no regions", id))
	}
	return s.reply(ctx, chatID, fmt.Sprintf("Access for %d: [%s]", id, strings.Join(regions, ", ")))
}

// listArchive forwards one local calendar day of archived messages grouped by
// region, each preceded by its archive id.
func (s *Service) listArchive(ctx context.Context, chatID int64, args []string) error {
	if len(args) > 2 {
		return s.reply(ctx, chatID, "Bad date")
	}
	offset := ""
	if len(args) == 2 {
		offset = args[1]
	}
	location, _, err := s.offsetLocation(offset)
	if err != nil {
		return s.reply(ctx, chatID, "Bad offset")
	}
	day := grammar.StartOfDay(s.now(), location)
	if len(args) > 0 {
		day, err = grammar.ParseDate(args[0], location)
		if err != nil {
			return s.reply(ctx, chatID, "Bad date")
		}
	}

	messages, err := s.store.QueryMessages(ctx, relay.MessageQuery{Window: relay.Window{
		From: day,
		To:   day.AddDate(0, 0, 1).Add(-time.Nanosecond),
	}})
	if err != nil {
		return s.reply(ctx, chatID, renderError(&relay.StoreError{Op: "list messages", Err: err}))
	}
	if len(messages) == 0 {
		return s.reply(ctx, chatID, renderError(&relay.NoMessagesError{}))
	}

	byRegion := map[string][]relay.StoredMessage{}
	for _, stored := range messages {
		for _, region := range stored.Regions {
			byRegion[region] = append(byRegion[region], stored)
		}
	}
	codes := make([]string, 0, len(byRegion))
	for code := range byRegion {
		codes = append(codes, code)
	}
	for _, code := range s.orderRegions(codes, true) {
		if err := s.reply(ctx, chatID, regionHeader(code)); err != nil {
			return err
		}
		if err := s.forwardAll(ctx, chatID, byRegion[code], true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) deleteArchived(ctx context.Context, chatID int64, args []string) error {
	if len(args) != 1 {
		return s.reply(ctx, chatID, badIDReply)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return s.reply(ctx, chatID, badIDReply)
	}
	if err := s.store.DeleteMessage(ctx, id.String()); err != nil {
		return s.reply(ctx, chatID, "Could not delete message. Error: "+err.Error())
	}
	return s.reply(ctx, chatID, "Deleted message with id "+id.String())
}

func (s *Service) cleanArchive(ctx context.Context, chatID int64, args []string) error {
	if len(args) != 1 {
		return s.reply(ctx, chatID, "Unknown number of days")
	}
	days, err := strconv.Atoi(args[0])
	if err != nil || days < 0 {
		return s.reply(ctx, chatID, "Unknown number of days")
	}
	before := s.now().AddDate(0, 0, -days)
	purged, err := s.store.PurgeBefore(ctx, before)
	if err != nil {
		return s.reply(ctx, chatID, "Could not delete messages. Error: "+err.Error())
	}
	return s.reply(ctx, chatID, fmt.Sprintf("Deleted %d messages before %s", purged, before.Format(time.RFC3339)))
}

func (s *Service) archiveStats(ctx context.Context, chatID int64, args []string) error {
	if len(args) > 1 {
		return s.reply(ctx, chatID, "Bad offset")
	}
	offset := ""
	if len(args) == 1 {
		offset = args[0]
	}
	location, label, err := s.offsetLocation(offset)
	if err != nil {
		return s.reply(ctx, chatID, "Bad offset")
	}
	stats, err := s.store.Stats(ctx, s.now(), location)
	if err != nil {
		return s.reply(ctx, chatID, "Command failed. Error: "+err.Error())
	}
	return s.reply(ctx, chatID, fmt.Sprintf(
		"Message count (%s).\nToday\t- %d\nYesterday\t- %d\nBefore yesterday\t- %d\nWeek\t- %d\nMonth\t- %d\nEarlier\t- %d\n",
		label,
		stats.Today,
		stats.Yesterday,
		stats.BeforeYesterday,
		stats.Week,
		stats.Month,
		stats.Earlier,
	))
}

// KnownChats returns the relay chat ids currently in memory, sorted.
func (s *Service) KnownChats() []int64 {
	s.chatsMu.RLock()
	defer s.chatsMu.RUnlock()
	chats := make([]int64, 0, len(s.chats))
	for id := range s.chats {
		chats = append(chats, id)
	}
	sort.Slice(chats, func(left, right int) bool { return chats[left] < chats[right] })
	return chats
}
