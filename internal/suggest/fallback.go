package suggest

// fallbackReplies are shown when drafting fails or times out. Generic on
// purpose: they must read sensibly in any conversation.
var fallbackReplies = []string{
	"Sounds good!",
	"Thanks for letting me know.",
	"Can I get back to you in a bit?",
}

// Fallback returns a fresh copy of the canned reply list.
func Fallback() []string {
	out := make([]string, len(fallbackReplies))
	copy(out, fallbackReplies)
	return out
}
