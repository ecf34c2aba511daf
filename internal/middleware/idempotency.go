package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/0xMgwan/BTCx/internal/store"
)

// Idempotency replays the recorded response for a previously seen
// Idempotency-Key instead of creating a second payment. The key is optional;
// requests without one are passed through.
func Idempotency(redisClient *redis.Client, st *store.PaymentStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		if redisClient != nil {
			cached, err := redisClient.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
			if err == nil {
				c.Data(http.StatusOK, "application/json", []byte(cached))
				c.Abort()
				return
			}
		}

		if payment, err := st.GetByIdempotencyKey(ctx, key); err == nil {
			body, _ := json.Marshal(payment)
			c.Data(http.StatusOK, "application/json", body)
			c.Abort()
			return
		}

		c.Set("idempotency_key", key)
		c.Next()
	}
}
