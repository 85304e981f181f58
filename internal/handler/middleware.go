package handler

import (
	"log"
	"strconv"
	"sync"
	"time"

	"loyaltysystem/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActorID  = "X-Actor-ID"
	HeaderStoreID  = "X-Store-ID"

	ctxTenantID = "tenant_id"
	ctxActorID  = "actor_id"
	ctxStoreID  = "store_id"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s | tenant=%s actor=%s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
			c.GetHeader(HeaderTenantID),
			c.GetHeader(HeaderActorID),
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID, X-Tenant-ID, X-Actor-ID, X-Store-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// IdentityMiddleware 读取上游网关注入的身份头
// 租户和操作人必填，门店可选
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := strconv.ParseInt(c.GetHeader(HeaderTenantID), 10, 64)
		if err != nil || tenantID <= 0 {
			response.Error(c, response.CodeUnauthorized, "缺少或非法的租户标识")
			c.Abort()
			return
		}
		actorID, err := strconv.ParseInt(c.GetHeader(HeaderActorID), 10, 64)
		if err != nil || actorID <= 0 {
			response.Error(c, response.CodeUnauthorized, "缺少或非法的操作人标识")
			c.Abort()
			return
		}
		c.Set(ctxTenantID, tenantID)
		c.Set(ctxActorID, actorID)

		if raw := c.GetHeader(HeaderStoreID); raw != "" {
			storeID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || storeID <= 0 {
				response.ParamError(c, "非法的门店标识")
				c.Abort()
				return
			}
			c.Set(ctxStoreID, storeID)
		}

		c.Next()
	}
}

// limiterSet 按 key 维护令牌桶，空闲超过 idleTTL 的条目会被清理。
// 空闲一个完整补充周期后令牌桶必然已满，删除后重建与保留等价
type limiterSet struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterSet(perMinute int) *limiterSet {
	return &limiterSet{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idleTTL: time.Minute,
		entries: make(map[string]*limiterEntry),
	}
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= s.idleTTL {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) >= s.idleTTL {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	entry, ok := s.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (s *limiterSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RateLimitMiddleware 按 租户+操作人 限流，perMinute <= 0 时不限流
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := newLimiterSet(perMinute)

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderTenantID) + ":" + c.GetHeader(HeaderActorID)

		if !limiters.allow(key, time.Now()) {
			log.Printf("[HTTP] 请求过于频繁: key=%s, path=%s", key, c.Request.URL.Path)
			response.Error(c, response.CodeTooManyRequests, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
