package dialogue

// Variant is the conversation mode a chat is in.
type Variant int

const (
	Idle Variant = iota
	Private
	Group
)

func (v Variant) String() string {
	switch v {
	case Private:
		return "private"
	case Group:
		return "group"
	default:
		return "idle"
	}
}

type transitionKey struct {
	private bool
	current Variant
	known   bool
}

var transitions = map[transitionKey]Variant{
	{private: false, current: Idle, known: false}:    Idle,
	{private: false, current: Idle, known: true}:     Group,
	{private: false, current: Group, known: true}:    Group,
	{private: false, current: Group, known: false}:   Idle,
	{private: false, current: Private, known: true}:  Group,
	{private: false, current: Private, known: false}: Idle,
}

// Next picks the variant for an incoming message. Private chats are always
// Private; group chats relay only while registered.
func Next(private bool, current Variant, known bool) Variant {
	if private {
		return Private
	}
	if next, ok := transitions[transitionKey{private: false, current: current, known: known}]; ok {
		return next
	}
	return Idle
}

// DropsBuffer reports whether moving between the variants discards pending
// group messages.
func DropsBuffer(from, to Variant) bool {
	return from == Group && to != Group
}
