package gateway

type SlashCommand struct {
	Name        string
	Description string
	AdminOnly   bool
}

// SlashCommands lists the private chat commands in menu order.
func SlashCommands() []SlashCommand {
	return []SlashCommand{
		{Name: "start", Description: "Say hello"},
		{Name: "help", Description: "Show what you can ask for"},
		{Name: "list_users", Description: "List registered users", AdminOnly: true},
		{Name: "add_user", Description: "Register a user: <id> [Admin]", AdminOnly: true},
		{Name: "del_user", Description: "Remove a user: <id>", AdminOnly: true},
		{Name: "list_chats", Description: "List relay chats", AdminOnly: true},
		{Name: "add_chat", Description: "Start relaying a chat: <id>", AdminOnly: true},
		{Name: "del_chat", Description: "Stop relaying a chat: <id>", AdminOnly: true},
		{Name: "grant", Description: "Allow regions: <id> <regions>", AdminOnly: true},
		{Name: "revoke", Description: "Revoke regions: <id> <regions>", AdminOnly: true},
		{Name: "access", Description: "Show allowed regions: <id>", AdminOnly: true},
		{Name: "listdb", Description: "Forward one day of archive: [DD.MM.YY [OFFSET]]", AdminOnly: true},
		{Name: "deldb", Description: "Delete an archived message: <id>", AdminOnly: true},
		{Name: "cleandb", Description: "Purge archive, keeping <days>", AdminOnly: true},
		{Name: "statdb", Description: "Archive counters: [OFFSET]", AdminOnly: true},
	}
}
