package http

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"newsriver/internal/handler/http/respond"
)

// ipHistory stores request timestamps for one client IP.
type ipHistory struct {
	hits []time.Time
	mu   sync.Mutex
}

// RateLimiter implements IP-based rate limiting with a sliding window.
// One instance guards the whole admin surface; scrapers talk to the
// scheduler in-process and never pass through it.
type RateLimiter struct {
	history   sync.Map // map[string]*ipHistory
	limit     int      // 許可する最大リクエスト数
	window    time.Duration
	sweepMu   sync.Mutex
	lastSweep time.Time
}

// NewRateLimiter creates a new rate limiting middleware.
// limit: maximum number of requests allowed within the time window.
// window: time window duration (e.g., for 5 requests per minute: limit=5, window=1*time.Minute).
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		window:    window,
		lastSweep: time.Now(),
	}
}

// Limit applies rate limiting to incoming requests based on client IP address.
// Returns 429 Too Many Requests if the rate limit is exceeded.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)

		// 定期的に古いレコードをクリーンアップ（メモリリーク防止）
		rl.maybeSweep()

		if !rl.allow(ip) {
			respond.SafeError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow determines if a request is permitted and records the timestamp if allowed.
func (rl *RateLimiter) allow(ip string) bool {
	now := time.Now()

	val, _ := rl.history.LoadOrStore(ip, &ipHistory{
		hits: make([]time.Time, 0, rl.limit),
	})
	entry := val.(*ipHistory)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// 時間窓外の古いタイムスタンプを削除
	cutoff := now.Add(-rl.window)
	live := make([]time.Time, 0, len(entry.hits))
	for _, ts := range entry.hits {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}
	entry.hits = live

	if len(entry.hits) >= rl.limit {
		return false
	}

	entry.hits = append(entry.hits, now)
	return true
}

// maybeSweep drops idle IP entries so the map cannot grow without bound.
// Runs at most once every ten minutes; per-IP trimming in allow handles
// the hot entries in between.
func (rl *RateLimiter) maybeSweep() {
	rl.sweepMu.Lock()
	defer rl.sweepMu.Unlock()

	if time.Since(rl.lastSweep) < 10*time.Minute {
		return
	}

	rl.lastSweep = time.Now()
	cutoff := time.Now().Add(-rl.window * 2) // 時間窓の2倍以上古いレコードを削除

	rl.history.Range(func(key, value interface{}) bool {
		rl.sweepEntry(key, value, cutoff)
		return true
	})
}

// sweepEntry removes one IP's record when every timestamp has aged out.
func (rl *RateLimiter) sweepEntry(key, value interface{}, cutoff time.Time) {
	entry := value.(*ipHistory)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if allExpired(entry, cutoff) {
		rl.history.Delete(key)
	}
}

// allExpired checks if all timestamps in a record are older than the cutoff time.
func allExpired(entry *ipHistory, cutoff time.Time) bool {
	for _, ts := range entry.hits {
		if ts.After(cutoff) {
			return false
		}
	}
	return true
}

// extractIP extracts the client IP address from the HTTP request.
// It checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func extractIP(r *http.Request) string {
	// X-Forwarded-For ヘッダーを優先（リバースプロキシ経由の場合）
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// 最初のIPアドレスを使用（クライアントのIP）
		if ip := parseFirstIP(xff); ip != "" {
			return ip
		}
	}

	// X-Real-IP ヘッダーを確認
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
	}

	// RemoteAddr から取得（最後の手段）
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseFirstIP parses the first IP address from a comma-separated list.
func parseFirstIP(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			ip := net.ParseIP(s[:i])
			if ip != nil {
				return ip.String()
			}
			return ""
		}
	}
	// カンマがない場合は全体をパース
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return ""
}
