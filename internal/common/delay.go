package common

import (
	"context"
	"math/rand"
	"time"
)

// WaitDuration выполняет ожидание заданной длительности и регулярно проверяет
// контекст на отмену, чтобы не блокировать долгие задержки.
// Используем шаг в пять секунд, чтобы можно было вовремя завершить работу по требованию.
func WaitDuration(ctx context.Context, d time.Duration) error {
	const step = 5 * time.Second
	for remaining := d; remaining > 0; {
		chunk := step
		if remaining < chunk {
			chunk = remaining
		}
		select {
		case <-ctx.Done():
			// Возвращаем ошибку контекста, чтобы вызвать обработку прерывания выше по стеку.
			return ctx.Err()
		case <-time.After(chunk):
		}
		remaining -= chunk
	}
	return nil
}

// WaitRandom ожидает случайную длительность в диапазоне [min, max].
func WaitRandom(ctx context.Context, min, max time.Duration) error {
	return WaitDuration(ctx, RandomDuration(min, max))
}

// RandomDuration возвращает случайную длительность в диапазоне [min, max].
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}
