package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

var ErrBadEvent = errors.New("bad match event")

// MatchEvent is a status change the league API pushes for a match.
type MatchEvent struct {
	MatchID string
	Event   string
}

// Ended reports whether the event closes the match.
func (e MatchEvent) Ended() bool {
	switch e.Event {
	case "match_finished", "match_ended", "match_cancelled", "match_aborted":
		return true
	}
	return false
}

type matchEventDTO struct {
	Event   string `json:"event"`
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
	Payload struct {
		MatchID string `json:"match_id"`
		ID      string `json:"id"`
	} `json:"payload"`
}

// ParseMatchEvent reads a webhook body. The event name may come as "event"
// or "type", the id at the top level or inside "payload".
func ParseMatchEvent(body []byte) (MatchEvent, error) {
	var dto matchEventDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		return MatchEvent{}, errors.Wrap(ErrBadEvent, err.Error())
	}
	ev := MatchEvent{Event: dto.Event, MatchID: dto.MatchID}
	if ev.Event == "" {
		ev.Event = dto.Type
	}
	for _, id := range []string{dto.Payload.MatchID, dto.Payload.ID} {
		if ev.MatchID == "" {
			ev.MatchID = id
		}
	}
	ev.Event = strings.ToLower(strings.TrimSpace(ev.Event))
	ev.MatchID = strings.TrimSpace(ev.MatchID)
	if ev.Event == "" || ev.MatchID == "" {
		return MatchEvent{}, errors.Wrap(ErrBadEvent, "missing event or match id")
	}
	return ev, nil
}

// DedupKey identifies a delivery, retries of the same body share it.
func DedupKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
