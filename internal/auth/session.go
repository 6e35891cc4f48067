package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyFmt = "coach:session:%d"

func SetSession(rdb *redis.Client, operatorId uint, token string, duration time.Duration) error {
	ctx := context.Background()
	key := fmt.Sprintf(sessionKeyFmt, operatorId)
	return rdb.Set(ctx, key, token, duration).Err()
}

func GetSession(rdb *redis.Client, operatorId uint) (string, error) {
	ctx := context.Background()
	key := fmt.Sprintf(sessionKeyFmt, operatorId)
	return rdb.Get(ctx, key).Result()
}

func DeleteSession(rdb *redis.Client, operatorId uint) error {
	ctx := context.Background()
	key := fmt.Sprintf(sessionKeyFmt, operatorId)
	return rdb.Del(ctx, key).Err()
}
