package redis

import (
	"time"

	"github.com/rs/zerolog"
)

const presenceTTL = 24 * time.Hour

// Presence mirrors room membership into redis sets so the REST API can
// report live occupancy. Updates are best-effort and asynchronous: the
// event path never blocks on redis.
type Presence struct {
	log zerolog.Logger
}

func NewPresence(logger zerolog.Logger) *Presence {
	return &Presence{log: logger}
}

func (p *Presence) Joined(roomID, connID string) {
	go func() {
		c := GetClient()
		if err := c.SAdd(ctx, "room:"+roomID+":peers", connID).Err(); err != nil {
			p.log.Warn().Err(err).Str("room_id", roomID).Msg("presence mirror add failed")
			return
		}
		c.Expire(ctx, "room:"+roomID+":peers", presenceTTL)
	}()
}

func (p *Presence) Left(roomID, connID string) {
	go func() {
		if err := GetClient().SRem(ctx, "room:"+roomID+":peers", connID).Err(); err != nil {
			p.log.Warn().Err(err).Str("room_id", roomID).Msg("presence mirror remove failed")
		}
	}()
}
