// Package stagger разводит по времени кампании, пересылающие одно и то же
// сообщение: одновременная публикация одинакового контента несколькими
// аккаунтами выдаёт автоматизацию.
package stagger

import (
	"sort"
	"time"

	"bump_go/models"
)

// PerSlot возвращает задержку между соседними слотами группы кампаний
// с общим источником сообщения. Чем больше группа, тем плотнее слоты.
func PerSlot(groupSize int) time.Duration {
	switch {
	case groupSize <= 1:
		return 0
	case groupSize == 2:
		return 30 * time.Minute
	case groupSize == 3:
		return 25 * time.Minute
	case groupSize == 4:
		return 15 * time.Minute
	default:
		return 10 * time.Minute
	}
}

// Offsets вычисляет смещение запуска для каждой кампании.
// Кампании группируются по источнику сообщения, внутри группы слоты
// распределяются детерминированно: по возрастанию ID аккаунта, затем ID кампании.
// Смещение равно номеру слота, умноженному на шаг группы.
func Offsets(campaigns []models.Campaign) map[int]time.Duration {
	groups := make(map[string][]models.Campaign)
	for _, c := range campaigns {
		key := c.SourceKey()
		groups[key] = append(groups[key], c)
	}

	offsets := make(map[int]time.Duration, len(campaigns))
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			if group[i].AccountID != group[j].AccountID {
				return group[i].AccountID < group[j].AccountID
			}
			return group[i].ID < group[j].ID
		})
		per := PerSlot(len(group))
		for slot, c := range group {
			offsets[c.ID] = time.Duration(slot) * per
		}
	}
	return offsets
}
