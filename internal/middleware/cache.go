package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// responseMeta collects the fields a handler echoes in the envelope meta block.
type responseMeta struct {
	started time.Time
	fields  map[string]interface{}
}

// WithResponseMeta starts the per-request meta block.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now(), fields: map[string]interface{}{}})
		c.Next()
	}
}

// SetCacheHit marks whether the payload was served from the cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, "cache_hit", hit)
}

// SetMeta stores a single meta field.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if meta := metaOf(c); meta != nil {
		meta.fields[key] = value
	}
}

// ExtractMeta snapshots the collected fields, stamped with the elapsed time.
// It returns nil when the request carries no meta block.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := metaOf(c)
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta.fields)+1)
	for k, v := range meta.fields {
		out[k] = v
	}
	out["processing_time_ms"] = time.Since(meta.started).Milliseconds()
	return out
}

func metaOf(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	raw, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, _ := raw.(*responseMeta)
	return meta
}
