package gateway

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dwizi/region-relay/internal/grammar"
	"github.com/dwizi/region-relay/internal/relay"
	"github.com/dwizi/region-relay/internal/store"
)

const (
	adminHelp = "/list_users\n" +
		"/add_user <id> [Admin]\n" +
		"/del_user <id>\n" +
		"/list_chats\n" +
		"/add_chat <id>\n" +
		"/del_chat <id>\n" +
		"/grant <id> <regions>\n" +
		"/revoke <id> <regions>\n" +
		"/access <id>\n" +
		"/listdb <DD.MM.YY> [OFFSET, default '%s']\n" +
		"/deldb <id>\n" +
		"/cleandb <days to keep>\n" +
		"/statdb [OFFSET, default '%s']\n" +
		queryHelp
	queryHelp        = "Regions [hours] [tags]"
	unregisteredHelp = "Test echo bot"
	startReply       = "Hello world!"
)

func (s *Service) helpText(group store.UserGroup) string {
	switch group {
	case store.GroupAdmin:
		return fmt.Sprintf(adminHelp, s.defaultOffset, s.defaultOffset)
	case store.GroupRegistered:
		return queryHelp
	default:
		return unregisteredHelp
	}
}

func renderSaved(outcome relay.Outcome) string {
	regions := ""
	if len(outcome.Regions) == 1 {
		regions = outcome.Regions[0]
	} else {
		regions = "[" + strings.Join(outcome.Regions, ", ") + "]"
	}
	tags := ""
	if len(outcome.Tags) > 0 {
		tags = ": [" + strings.Join(outcome.Tags, ", ") + "]"
	}
	return fmt.Sprintf("Saved [%d]\n%s%s", outcome.Count, regions, tags)
}

func quoted(values []string) string {
	items := make([]string, 0, len(values))
	for _, value := range values {
		items = append(items, fmt.Sprintf("%q", value))
	}
	return "[" + strings.Join(items, ", ") + "]"
}

// renderError turns relay and grammar failures into chat text.
func renderError(err error) string {
	var badRegion *relay.BadRegionError
	var badTag *relay.BadTagError
	var noMessages *relay.NoMessagesError
	var storeErr *relay.StoreError
	var privilege *relay.PrivilegeError
	switch {
	case errors.Is(err, relay.ErrNoRegions):
		return "No regions given"
	case errors.Is(err, grammar.ErrBadHours):
		return "Unknown duration"
	case errors.As(err, &badRegion):
		return fmt.Sprintf("Unknown region\n%q.\nMatches: %s", badRegion.Token, quoted(badRegion.Candidates))
	case errors.As(err, &badTag):
		return fmt.Sprintf("Unknown tag\n%q. Allowed tags: [ %s ]", badTag.Token, strings.Join(badTag.Allowed, ", "))
	case errors.As(err, &noMessages):
		return "No messages for this request"
	case errors.As(err, &privilege):
		return fmt.Sprintf("This command needs group %s, your group is %s", privilege.Desired, privilege.Current)
	case errors.As(err, &storeErr):
		return "Database error\n" + storeErr.Err.Error()
	default:
		return "Command failed. Error: " + err.Error()
	}
}

// orderRegions sorts codes and moves the trailing region to the end.
func (s *Service) orderRegions(codes []string, sorted bool) []string {
	ordered := append([]string(nil), codes...)
	if sorted {
		sort.Strings(ordered)
	}
	if s.trailingRegion == "" {
		return ordered
	}
	result := make([]string, 0, len(ordered))
	trailing := false
	for _, code := range ordered {
		if code == s.trailingRegion {
			trailing = true
			continue
		}
		result = append(result, code)
	}
	if trailing {
		result = append(result, s.trailingRegion)
	}
	return result
}

func regionHeader(code string) string {
	return "Region: " + code
}
