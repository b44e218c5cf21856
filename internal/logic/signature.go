package logic

import (
	"strconv"
	"strings"
	"sync"

	"github.com/matchcast/predictor/internal/models"
)

const nullToken = "None"

// Signature is the change-detection fingerprint of a live snapshot: elapsed time,
// status, goals and the twelve statistics joined in a fixed order.
func Signature(e *models.InboundEvent) string {
	parts := make([]string, 0, 16)
	parts = append(parts,
		formatInt(e.Elapsed),
		e.StatusShort,
		formatInt(e.HomeGoals),
		formatInt(e.AwayGoals),
	)
	// Fingerprint order interleaves home/away per statistic.
	s := e.Stats()
	for _, v := range []*float64{
		s.HomeShotsTotal, s.AwayShotsTotal,
		s.HomeShotsInbox, s.AwayShotsInbox,
		s.HomePossession, s.AwayPossession,
		s.HomePassAccuracy, s.AwayPassAccuracy,
		s.HomeCorners, s.AwayCorners,
		s.HomeFouls, s.AwayFouls,
	} {
		parts = append(parts, formatFloat(v))
	}
	return strings.Join(parts, "|")
}

// SignatureCache remembers the last published fingerprint per fixture and
// suppresses snapshots that have not changed. It belongs to the live poller;
// entries are dropped when a fixture finishes or leaves the live feed.
type SignatureCache struct {
	mu   sync.Mutex
	last map[int64]string
}

func NewSignatureCache() *SignatureCache {
	return &SignatureCache{last: make(map[int64]string)}
}

// ShouldPublish returns false and leaves the cache untouched when the snapshot's
// fingerprint equals the stored one; otherwise it stores the new fingerprint and
// returns true.
func (c *SignatureCache) ShouldPublish(fixtureID int64, e *models.InboundEvent) bool {
	sig := Signature(e)

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.last[fixtureID]; ok && prev == sig {
		return false
	}
	c.last[fixtureID] = sig
	return true
}

// Forget drops a fixture's fingerprint.
func (c *SignatureCache) Forget(fixtureID int64) {
	c.mu.Lock()
	delete(c.last, fixtureID)
	c.mu.Unlock()
}

// Retain drops every fixture not in live. It returns the number evicted.
func (c *SignatureCache) Retain(live map[int64]struct{}) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id := range c.last {
		if _, ok := live[id]; !ok {
			delete(c.last, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked fixtures.
func (c *SignatureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

func formatInt(v *int) string {
	if v == nil {
		return nullToken
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return nullToken
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
