package ratelimit

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/response"
)

const idleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerIP keeps one token bucket per client IP.
type PerIP struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	lastGC   time.Time
}

// NewPerIP builds a limiter allowing rps sustained requests and burst spikes
// per client. A non-positive rps disables limiting.
func NewPerIP(rps float64, burst int) *PerIP {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &PerIP{limit: limit, burst: burst, now: time.Now, visitors: make(map[string]*visitor)}
}

// Allow consumes a token for key and reports whether the request may proceed
// together with the wait until the next token.
func (p *PerIP) Allow(key string) (bool, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.evictIdle(now)

	v, ok := p.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.visitors[key] = v
	}
	v.lastSeen = now

	reservation := v.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	reservation.CancelAt(now)
	return false, delay
}

func (p *PerIP) evictIdle(now time.Time) {
	if now.Sub(p.lastGC) < time.Minute {
		return
	}
	p.lastGC = now
	for key, v := range p.visitors {
		if now.Sub(v.lastSeen) > idleTTL {
			delete(p.visitors, key)
		}
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (p *PerIP) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := p.Allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			response.Error(c, appErrors.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
