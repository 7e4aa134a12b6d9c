package comments

// The fixed reaction vocabulary. Anything outside this set is rejected at
// the request boundary for both add and remove.
const (
	EmojiThumbsUp   = "👍"
	EmojiThumbsDown = "👎"
	EmojiHeart      = "❤️"
	EmojiLaugh      = "😄"
	EmojiSurprised  = "😮"
	EmojiSad        = "😢"
	EmojiParty      = "🎉"
	EmojiRocket     = "🚀"
)

var supportedEmojis = map[string]struct{}{
	EmojiThumbsUp:   {},
	EmojiThumbsDown: {},
	EmojiHeart:      {},
	EmojiLaugh:      {},
	EmojiSurprised:  {},
	EmojiSad:        {},
	EmojiParty:      {},
	EmojiRocket:     {},
}

func IsSupportedEmoji(emoji string) bool {
	_, ok := supportedEmojis[emoji]
	return ok
}

// SupportedEmojis returns the vocabulary in a stable order, for error
// messages and API discovery.
func SupportedEmojis() []string {
	return []string{
		EmojiThumbsUp,
		EmojiThumbsDown,
		EmojiHeart,
		EmojiLaugh,
		EmojiSurprised,
		EmojiSad,
		EmojiParty,
		EmojiRocket,
	}
}
