package http_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	httpHandler "newsriver/internal/handler/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// BenchmarkRateLimiter_AdminStatus は単一オペレータの /status ポーリングを測定
func BenchmarkRateLimiter_AdminStatus(b *testing.B) {
	limiter := httpHandler.NewRateLimiter(10000, time.Minute)
	handler := limiter.Limit(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/status?url=https://example.com/rss", nil)
	req.RemoteAddr = "10.0.0.7:52110"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}
}

// BenchmarkRateLimiter_ManyClients はIPごとのsync.Mapエントリ生成コストを測定
// （スキャナが管理ポートを叩くと毎回新しいIPでエントリが増える）
func BenchmarkRateLimiter_ManyClients(b *testing.B) {
	limiter := httpHandler.NewRateLimiter(1000, time.Minute)
	handler := limiter.Limit(okHandler())

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			req := httptest.NewRequest(http.MethodPost, "/trigger?url=https://example.com/rss", nil)
			req.RemoteAddr = "10.1." + strconv.Itoa(i%250) + "." + strconv.Itoa(i/250%250) + ":40000"
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			i++
		}
	})
}

// BenchmarkRateLimiter_WindowTrim は窓いっぱいの履歴を持つIPのトリムコストを測定
func BenchmarkRateLimiter_WindowTrim(b *testing.B) {
	limit := 500
	limiter := httpHandler.NewRateLimiter(limit, time.Minute)
	handler := limiter.Limit(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/status?url=https://example.com/rss", nil)
	req.RemoteAddr = "10.0.0.9:52110"

	// 履歴を上限まで埋めてから計測する（以降は毎回429パス）
	for i := 0; i < limit; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}
}

// BenchmarkRateLimiter_ForwardedFor はプロキシ経由リクエストのIP抽出コストを測定
func BenchmarkRateLimiter_ForwardedFor(b *testing.B) {
	limiter := httpHandler.NewRateLimiter(10000, time.Minute)
	handler := limiter.Limit(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/status?url=https://example.com/rss", nil)
	req.RemoteAddr = "127.0.0.1:8080"
	req.Header.Set("X-Forwarded-For", "203.0.113.50, 10.0.0.1, 10.0.0.2")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}
}
