package draft

const EmojiReady = "✅"

// numberEmojis are the keycap digits 0-9 followed by the keycap ten.
var numberEmojis = []string{
	"0️⃣", "1️⃣", "2️⃣", "3️⃣", "4️⃣",
	"5️⃣", "6️⃣", "7️⃣", "8️⃣", "9️⃣", "🔟",
}

// pickEmojis label draftable players: 1 through 10, then regional letters.
var pickEmojis = func() []string {
	out := append([]string(nil), numberEmojis[1:]...)
	for r := rune(0x1F1E6); r <= 0x1F1FF; r++ {
		out = append(out, string(r))
	}
	return out
}()

// NumberEmoji returns the keycap emoji for n in 0..10.
func NumberEmoji(n int) string {
	if n < 0 || n >= len(numberEmojis) {
		return ""
	}
	return numberEmojis[n]
}

// MaxDraftPlayers is how many players a captains draft can label.
func MaxDraftPlayers() int { return len(pickEmojis) }
